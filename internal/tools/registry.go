// Package tools defines the fixed read-only toolset exposed to the agent.
package tools

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// Handler executes one tool call and returns its payload.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one callable tool: its LLM-facing spec, a recovery hint shown to
// the model on failure, and the handler.
type Tool struct {
	Spec    model.ToolSpec
	Hint    string
	Handler Handler
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *logger.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: log,
	}
}

// Register adds a tool. Later registrations with the same name replace the
// earlier one.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Spec.Name]; !exists {
		r.order = append(r.order, t.Spec.Name)
	}
	r.tools[t.Spec.Name] = t
}

// Clone returns a new registry containing the same tools. Used to build
// run-scoped registries that add session-local tools without mutating the
// shared set.
func (r *Registry) Clone() *Registry {
	c := NewRegistry(r.logger)
	for _, name := range r.order {
		c.Register(r.tools[name])
	}
	return c
}

// Specs returns the tool declarations in registration order.
func (r *Registry) Specs() []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool. Every failure mode, including a panicking
// handler, is captured as a structured failure payload: the agent loop must
// never crash because a tool failed.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result model.ToolResult) {
	tool, ok := r.tools[name]
	if !ok {
		return model.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("unknown tool %q", name),
			Hint:    "call one of the declared tools exactly by name",
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked",
				zap.String("tool", name),
				zap.String("panic", fmt.Sprint(rec)),
			)
			result = model.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("internal tool failure: %v", rec),
				Hint:    tool.Hint,
			}
		}
		metrics.RecordToolCall(name, result.Success)
	}()

	data, err := tool.Handler(ctx, args)
	if err != nil {
		return model.ToolResult{
			Success: false,
			Error:   err.Error(),
			Hint:    tool.Hint,
		}
	}

	return model.ToolResult{Success: true, Data: data}
}

// stringArg reads an optional string argument.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg reads an optional integer argument; JSON numbers arrive as
// float64.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// boolArg reads an optional boolean argument.
func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
