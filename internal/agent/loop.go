package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/llm"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// defaultMaxTurns bounds a run when the request does not set a budget.
const defaultMaxTurns = 12

// SelfManagedRunner owns the conversation loop: it sends normalized turns
// to an llm.Client, executes the tool calls the model requests, appends
// the results, and repeats until the model answers in plain text or the
// turn budget runs out.
type SelfManagedRunner struct {
	client       llm.Client
	logger       *logger.Logger
	historyLimit int
}

// NewSelfManagedRunner creates a runner around a normalized LLM client.
// historyLimit caps how many turns are kept in the conversation window;
// zero means unlimited.
func NewSelfManagedRunner(client llm.Client, historyLimit int, log *logger.Logger) *SelfManagedRunner {
	return &SelfManagedRunner{
		client:       client,
		logger:       log,
		historyLimit: historyLimit,
	}
}

// Provider returns the underlying client's provider name.
func (r *SelfManagedRunner) Provider() string {
	return r.client.Name()
}

// Run drives the loop to completion. Tool failures are recoverable: they
// are fed back to the model as error results. Provider failures are fatal
// and return the partial log and usage alongside the error.
func (r *SelfManagedRunner) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	result := &RunResult{}
	turns := []llm.Turn{llm.UserText(req.Prompt)}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := r.client.Chat(ctx, &llm.ChatRequest{
			Model:  req.Model,
			System: req.System,
			Turns:  turns,
			Tools:  req.Registry.Specs(),
		})
		if err != nil {
			return result, fmt.Errorf("model call failed: %w", err)
		}
		result.Usage.Add(resp.InputTokens, resp.OutputTokens)

		calls := llm.ToolCalls(resp.Parts)
		text := llm.JoinText(resp.Parts)

		if len(calls) == 0 {
			if text == "" {
				// A model can stall with an empty response; nudge it once
				// per occurrence rather than aborting the run.
				turns = append(turns,
					llm.ModelTurn(resp.Parts),
					llm.UserText("Continue. Either call a tool or produce the final answer now."))
				turns = r.pruneHistory(turns)
				continue
			}
			result.FinalText = text
			return result, nil
		}

		if text != "" {
			emitProgress(req.OnProgress, model.ProgressEvent{
				Type:    model.EventThinking,
				Message: text,
			})
		}

		turns = append(turns, llm.ModelTurn(resp.Parts))
		turns = append(turns, r.executeCalls(ctx, req, calls, result))
		turns = r.pruneHistory(turns)
	}

	// Budget exhausted: one closing call with tools disabled so the model
	// must summarize what it has.
	turns = append(turns, llm.UserText(
		"You have used all available tool calls. Produce the final answer now from the information gathered so far."))
	resp, err := r.client.Chat(ctx, &llm.ChatRequest{
		Model:        req.Model,
		System:       req.System,
		Turns:        turns,
		DisableTools: true,
	})
	if err != nil {
		return result, fmt.Errorf("forced final call failed: %w", err)
	}
	result.Usage.Add(resp.InputTokens, resp.OutputTokens)

	if text := llm.JoinText(resp.Parts); text != "" {
		result.FinalText = text
		return result, nil
	}
	return result, ErrNoFinalAnswer
}

// executeCalls runs every tool call from one model turn and builds the
// answering tool-result turn. Every call is answered, success or not: a
// dangling tool call would invalidate the next model request.
func (r *SelfManagedRunner) executeCalls(ctx context.Context, req *RunRequest, calls []llm.ToolCallPart, result *RunResult) llm.Turn {
	parts := make([]llm.Part, 0, len(calls))
	for _, call := range calls {
		emitProgress(req.OnProgress, model.ProgressEvent{
			Type:    model.EventTool,
			Tool:    call.Name,
			Message: fmt.Sprintf("Calling %s", call.Name),
		})
		result.Log = append(result.Log, model.ToolCallLogEntry{
			Timestamp: time.Now().UTC(),
			Kind:      model.LogToolUse,
			Tool:      call.Name,
			Input:     call.Args,
		})

		toolResult := req.Registry.Execute(ctx, call.Name, call.Args)

		entry := model.ToolCallLogEntry{
			Timestamp: time.Now().UTC(),
			Kind:      model.LogToolResult,
			Tool:      call.Name,
			Output:    toolResult.Data,
		}
		if !toolResult.Success {
			entry.Error = toolResult.Error
			r.logger.Warn("tool call failed",
				zap.String("tool", call.Name),
				zap.String("error", toolResult.Error))
		}
		result.Log = append(result.Log, entry)

		parts = append(parts, llm.ToolResultPart{
			ID:      call.ID,
			Name:    call.Name,
			Content: encodeToolResult(toolResult),
			IsError: !toolResult.Success,
		})
	}
	return llm.Turn{Role: llm.RoleUser, Parts: parts}
}

// pruneHistory keeps the window within historyLimit turns. The first user
// turn always survives because it carries the task. If pruning strands a
// tool-result turn at the window head, that turn is dropped too: a result
// without its call turn is a protocol violation.
func (r *SelfManagedRunner) pruneHistory(turns []llm.Turn) []llm.Turn {
	if r.historyLimit <= 0 || len(turns) <= r.historyLimit {
		return turns
	}

	head := turns[0]
	tail := turns[len(turns)-(r.historyLimit-1):]
	for len(tail) > 0 && llm.IsToolResultTurn(tail[0]) {
		tail = tail[1:]
	}

	pruned := make([]llm.Turn, 0, len(tail)+1)
	pruned = append(pruned, head)
	pruned = append(pruned, tail...)
	return pruned
}

func encodeToolResult(result model.ToolResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"result not serializable: %s"}`, err)
	}
	return string(data)
}

func emitProgress(fn ProgressFunc, event model.ProgressEvent) {
	if fn != nil {
		fn(event)
	}
}
