// Package llm provides LLM client interfaces and implementations.
//
// Provider-specific message shapes are normalized into the Part union at
// this boundary, once, so the agent loop never re-sniffs SDK types.
package llm

import (
	"context"
	"strings"

	"github.com/deckforge-ai/presentation-platform/internal/model"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one element of a turn: free text, a tool invocation request, or
// a tool invocation result.
type Part interface {
	part()
}

// TextPart is free text emitted by either side.
type TextPart struct {
	Text string
}

// ToolCallPart is a model request to execute a named tool.
type ToolCallPart struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResultPart answers one ToolCallPart from the previous turn.
type ToolResultPart struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

func (TextPart) part()       {}
func (ToolCallPart) part()   {}
func (ToolResultPart) part() {}

// Turn is one exchange unit in the agent's history.
type Turn struct {
	Role  Role
	Parts []Part
}

// UserText builds a user turn containing a single text part.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// ModelTurn builds a model turn from response parts.
func ModelTurn(parts []Part) Turn {
	return Turn{Role: RoleModel, Parts: parts}
}

// ToolCalls returns the tool invocation requests among parts.
func ToolCalls(parts []Part) []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range parts {
		if c, ok := p.(ToolCallPart); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// JoinText concatenates the text parts among parts.
func JoinText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// IsToolResultTurn reports whether a turn carries only tool results.
func IsToolResultTurn(t Turn) bool {
	if len(t.Parts) == 0 {
		return false
	}
	for _, p := range t.Parts {
		if _, ok := p.(ToolResultPart); !ok {
			return false
		}
	}
	return true
}

// ChatRequest is one model call in an agent run.
type ChatRequest struct {
	Model        string
	System       string
	Turns        []Turn
	Tools        []model.ToolSpec
	DisableTools bool
	MaxTokens    int
}

// ChatResponse is the normalized model response.
type ChatResponse struct {
	Parts        []Part
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client is the interface for LLM providers driven by the self-managed
// agent loop.
type Client interface {
	// Chat sends the conversation and returns the normalized response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider name.
	Name() string
}
