package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/deckforge-ai/presentation-platform/internal/llm"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// scriptedClient returns canned responses in order. Calls beyond the
// script replay the last response.
type scriptedClient struct {
	responses []*llm.ChatResponse
	err       error
	calls     int
	requests  []*llm.ChatRequest
}

func (c *scriptedClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.calls++
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	idx := c.calls - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func (c *scriptedClient) Name() string { return "scripted" }

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(logger.NewNop())
	r.Register(&tools.Tool{
		Spec: model.ToolSpec{
			Name:        "lookup",
			Description: "test lookup",
			Properties:  map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"value": 42}, nil
		},
	})
	r.Register(&tools.Tool{
		Spec: model.ToolSpec{
			Name:        "broken",
			Description: "always fails",
			Properties:  map[string]any{},
		},
		Hint: "do not call this",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	})
	return r
}

func TestRunToolCallThenAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{
			Parts:        []llm.Part{llm.ToolCallPart{ID: "c1", Name: "lookup", Args: map[string]any{}}},
			InputTokens:  100,
			OutputTokens: 20,
		},
		{
			Parts:        []llm.Part{llm.TextPart{Text: "the answer"}},
			InputTokens:  150,
			OutputTokens: 30,
		},
	}}

	runner := NewSelfManagedRunner(client, 0, logger.NewNop())
	result, err := runner.Run(context.Background(), &RunRequest{
		Prompt:   "go",
		Model:    "test-model",
		MaxTurns: 5,
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FinalText != "the answer" {
		t.Errorf("final text: got %q", result.FinalText)
	}
	if result.Usage.InputTokens != 250 || result.Usage.OutputTokens != 50 {
		t.Errorf("usage: got %+v", result.Usage)
	}
	// One dispatch record plus one completion record.
	if len(result.Log) != 2 {
		t.Fatalf("log entries: got %d, want 2", len(result.Log))
	}
	if result.Log[0].Kind != model.LogToolUse || result.Log[1].Kind != model.LogToolResult {
		t.Errorf("log kinds: got %q, %q", result.Log[0].Kind, result.Log[1].Kind)
	}

	// The second request must answer the tool call from the first.
	second := client.requests[1]
	last := second.Turns[len(second.Turns)-1]
	if !llm.IsToolResultTurn(last) {
		t.Error("tool call was not answered in the next turn")
	}
}

func TestRunToolFailureIsRecoverable(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Parts: []llm.Part{llm.ToolCallPart{ID: "c1", Name: "broken", Args: map[string]any{}}}},
		{Parts: []llm.Part{llm.TextPart{Text: "recovered"}}},
	}}

	runner := NewSelfManagedRunner(client, 0, logger.NewNop())
	result, err := runner.Run(context.Background(), &RunRequest{
		Prompt:   "go",
		Model:    "test-model",
		MaxTurns: 5,
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("tool failure aborted the run: %v", err)
	}
	if result.FinalText != "recovered" {
		t.Errorf("final text: got %q", result.FinalText)
	}

	var failureLogged bool
	for _, entry := range result.Log {
		if entry.Kind == model.LogToolResult && entry.Error != "" {
			failureLogged = true
		}
	}
	if !failureLogged {
		t.Error("tool failure missing from the call log")
	}
}

func TestRunEmptyResponseIsNudged(t *testing.T) {
	// The model stalls with a response carrying neither tool calls nor
	// text; the runner injects a forcing instruction and continues.
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Parts: nil, InputTokens: 50, OutputTokens: 0},
		{Parts: []llm.Part{llm.TextPart{Text: "done after nudge"}}, InputTokens: 80, OutputTokens: 10},
	}}

	runner := NewSelfManagedRunner(client, 0, logger.NewNop())
	result, err := runner.Run(context.Background(), &RunRequest{
		Prompt:   "go",
		Model:    "test-model",
		MaxTurns: 5,
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FinalText != "done after nudge" {
		t.Errorf("final text: got %q", result.FinalText)
	}
	if result.Usage.InputTokens != 130 {
		t.Errorf("usage across the nudged turn: got %+v", result.Usage)
	}
	if client.calls != 2 {
		t.Fatalf("model calls: got %d, want 2", client.calls)
	}

	second := client.requests[1]
	last := second.Turns[len(second.Turns)-1]
	if !strings.Contains(llm.JoinText(last.Parts), "Continue. Either call a tool") {
		t.Error("forcing instruction missing from the follow-up request")
	}
}

func TestRunBudgetExhaustionForcesFinalCall(t *testing.T) {
	// The model calls a tool every turn and never answers.
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Parts: []llm.Part{llm.ToolCallPart{ID: "c1", Name: "lookup", Args: map[string]any{}}}},
	}}

	runner := NewSelfManagedRunner(client, 0, logger.NewNop())
	result, err := runner.Run(context.Background(), &RunRequest{
		Prompt:   "go",
		Model:    "test-model",
		MaxTurns: 1,
		Registry: testRegistry(t),
	})
	// The forced call replays the scripted tool-call response; its text is
	// empty, so the runner reports no final answer rather than looping.
	if !errors.Is(err, ErrNoFinalAnswer) {
		t.Fatalf("got err %v, want ErrNoFinalAnswer", err)
	}
	if len(result.Log) < 2 {
		t.Error("tool work before exhaustion was not logged")
	}

	final := client.requests[len(client.requests)-1]
	if !final.DisableTools {
		t.Error("forced final call did not disable tools")
	}
}

func TestRunProviderErrorIsFatal(t *testing.T) {
	client := &scriptedClient{err: errors.New("upstream 500")}

	runner := NewSelfManagedRunner(client, 0, logger.NewNop())
	_, err := runner.Run(context.Background(), &RunRequest{
		Prompt:   "go",
		Model:    "test-model",
		MaxTurns: 3,
		Registry: testRegistry(t),
	})
	if err == nil {
		t.Fatal("provider error was swallowed")
	}
}

func TestPruneHistoryKeepsFirstTurnAndDropsStrandedResults(t *testing.T) {
	runner := NewSelfManagedRunner(&scriptedClient{}, 3, logger.NewNop())

	turns := []llm.Turn{
		llm.UserText("task"),
		llm.ModelTurn([]llm.Part{llm.ToolCallPart{ID: "a", Name: "lookup"}}),
		{Role: llm.RoleUser, Parts: []llm.Part{llm.ToolResultPart{ID: "a", Name: "lookup", Content: "{}"}}},
		llm.ModelTurn([]llm.Part{llm.ToolCallPart{ID: "b", Name: "lookup"}}),
		{Role: llm.RoleUser, Parts: []llm.Part{llm.ToolResultPart{ID: "b", Name: "lookup", Content: "{}"}}},
		llm.ModelTurn([]llm.Part{llm.TextPart{Text: "thinking"}}),
	}

	// The window tail starts at a tool-result turn, which must be dropped
	// along with the overflow.
	pruned := runner.pruneHistory(turns)

	if len(pruned) > 3 {
		t.Fatalf("pruned to %d turns, limit 3", len(pruned))
	}
	if llm.JoinText(pruned[0].Parts) != "task" {
		t.Error("first user turn was dropped")
	}
	if llm.IsToolResultTurn(pruned[1]) {
		t.Error("window starts with a stranded tool-result turn")
	}
}
