package service

import (
	"context"
	"errors"
	"testing"

	"github.com/deckforge-ai/presentation-platform/internal/agent"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// fakeRunner returns a canned result, optionally emitting progress first.
type fakeRunner struct {
	result *agent.RunResult
	err    error
}

func (r *fakeRunner) Run(ctx context.Context, req *agent.RunRequest) (*agent.RunResult, error) {
	if req.OnProgress != nil && r.result != nil {
		for _, entry := range r.result.Log {
			if entry.Kind == model.LogToolUse {
				req.OnProgress(model.ToolEvent(entry.Tool, "Calling "+entry.Tool))
			}
		}
	}
	return r.result, r.err
}

func (r *fakeRunner) Provider() string { return "fake" }

func newGenerateService(t *testing.T, runner agent.Runner) *GenerateService {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewGenerateService(GenerateConfig{
		Runners:         map[string]agent.Runner{"fake": runner},
		Registry:        tools.NewRegistry(logger.NewNop()),
		Sessions:        sessions,
		Logger:          logger.NewNop(),
		DefaultProvider: "fake",
		DefaultModels:   map[string]string{"fake": "test-model"},
		MaxTurns:        5,
	})
}

func collectEvents(t *testing.T, run func(emit func(model.ProgressEvent))) []model.ProgressEvent {
	t.Helper()
	var events []model.ProgressEvent
	run(func(e model.ProgressEvent) { events = append(events, e) })
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	return events
}

func terminalEvent(t *testing.T, events []model.ProgressEvent) model.ProgressEvent {
	t.Helper()
	last := events[len(events)-1]
	if last.Type != model.EventComplete && last.Type != model.EventError {
		t.Fatalf("stream did not terminate: last event %q", last.Type)
	}
	for _, e := range events[:len(events)-1] {
		if e.Type == model.EventComplete || e.Type == model.EventError {
			t.Fatalf("terminal event %q emitted before the end of the stream", e.Type)
		}
	}
	return last
}

func TestGenerateEndToEnd(t *testing.T) {
	finalText := "Research done.\n```json\n" +
		`{"title": "Acme Q3", "sections": ["<section class=\"slide\"><h2>Revenue</h2></section>", "<section class=\"slide\"><h2>Meetings</h2></section>"]}` +
		"\n```"

	runner := &fakeRunner{result: &agent.RunResult{
		FinalText: finalText,
		Log: []model.ToolCallLogEntry{
			{Kind: model.LogToolUse, Tool: "search_entities"},
			{Kind: model.LogToolResult, Tool: "search_entities"},
			{Kind: model.LogToolUse, Tool: "query_analytics"},
			{Kind: model.LogToolResult, Tool: "query_analytics"},
		},
		Usage: model.Usage{InputTokens: 1200, OutputTokens: 400},
	}}

	svc := newGenerateService(t, runner)
	events := collectEvents(t, func(emit func(model.ProgressEvent)) {
		svc.Generate(context.Background(), model.GenerateRequest{Prompt: "deck about Acme"}, emit)
	})
	last := terminalEvent(t, events)

	if last.Type != model.EventComplete {
		t.Fatalf("terminal event: got %q: %s", last.Type, last.Message)
	}
	// Title slide + two content slides + closing slide.
	if last.SlideCount != 4 {
		t.Errorf("slideCount: got %d, want 4", last.SlideCount)
	}
	if last.Title != "Acme Q3" {
		t.Errorf("title: got %q", last.Title)
	}
	if last.SessionID == "" {
		t.Error("complete event missing session id")
	}
	if last.Usage == nil || last.Usage.TotalTokens != 1600 {
		t.Errorf("usage: got %+v", last.Usage)
	}
	if last.Document == "" {
		t.Error("complete event missing document")
	}

	// Tool progress events surfaced before completion.
	var toolEvents int
	for _, e := range events {
		if e.Type == model.EventTool {
			toolEvents++
		}
	}
	if toolEvents != 2 {
		t.Errorf("tool events: got %d, want 2", toolEvents)
	}

	// The session is retrievable afterwards.
	meta, err := svc.sessions.Get(last.SessionID)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if meta.SlideCount != 4 {
		t.Errorf("stored slide count: got %d", meta.SlideCount)
	}
}

func TestGenerateUnparseableOutputDegrades(t *testing.T) {
	runner := &fakeRunner{result: &agent.RunResult{
		FinalText: "I was unable to format the deck properly, apologies.",
	}}

	svc := newGenerateService(t, runner)
	events := collectEvents(t, func(emit func(model.ProgressEvent)) {
		svc.Generate(context.Background(), model.GenerateRequest{Prompt: "deck"}, emit)
	})
	last := terminalEvent(t, events)

	// Unparseable output degrades to a diagnostic deck, never an error.
	if last.Type != model.EventComplete {
		t.Fatalf("terminal event: got %q", last.Type)
	}
	if last.SlideCount != 3 { // title + diagnostic + closing
		t.Errorf("slideCount: got %d, want 3", last.SlideCount)
	}
}

func TestGenerateNoFinalAnswerDegrades(t *testing.T) {
	runner := &fakeRunner{
		result: &agent.RunResult{Usage: model.Usage{InputTokens: 500}},
		err:    agent.ErrNoFinalAnswer,
	}

	svc := newGenerateService(t, runner)
	events := collectEvents(t, func(emit func(model.ProgressEvent)) {
		svc.Generate(context.Background(), model.GenerateRequest{Prompt: "deck"}, emit)
	})
	last := terminalEvent(t, events)

	if last.Type != model.EventComplete {
		t.Fatalf("terminal event: got %q", last.Type)
	}
}

func TestGenerateProviderErrorTerminatesStream(t *testing.T) {
	runner := &fakeRunner{
		result: &agent.RunResult{},
		err:    errors.New("upstream 500"),
	}

	svc := newGenerateService(t, runner)
	events := collectEvents(t, func(emit func(model.ProgressEvent)) {
		svc.Generate(context.Background(), model.GenerateRequest{Prompt: "deck"}, emit)
	})
	last := terminalEvent(t, events)

	if last.Type != model.EventError {
		t.Fatalf("terminal event: got %q", last.Type)
	}
}

func TestGenerateUnknownProvider(t *testing.T) {
	svc := newGenerateService(t, &fakeRunner{result: &agent.RunResult{}})
	events := collectEvents(t, func(emit func(model.ProgressEvent)) {
		svc.Generate(context.Background(), model.GenerateRequest{Prompt: "deck", Provider: "nope"}, emit)
	})
	last := terminalEvent(t, events)

	if last.Type != model.EventError {
		t.Fatalf("terminal event: got %q", last.Type)
	}
}
