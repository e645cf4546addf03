package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/agent"
	"github.com/deckforge-ai/presentation-platform/internal/deck"
	"github.com/deckforge-ai/presentation-platform/internal/llm"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/nats"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// TweakService edits existing presentations. Two paths: a single model
// call when the user selected specific slides, and a tool-driven agent run
// over a scratch copy when the change targets the whole deck.
type TweakService struct {
	client    llm.Client
	runners   map[string]agent.Runner
	registry  *tools.Registry
	sessions  *session.Store
	publisher *nats.Publisher
	logger    *logger.Logger

	defaultProvider string
	defaultModels   map[string]string
	maxTurns        int
}

// TweakConfig wires a TweakService.
type TweakConfig struct {
	Client          llm.Client // used by the selected-fragment path
	Runners         map[string]agent.Runner
	Registry        *tools.Registry
	Sessions        *session.Store
	Publisher       *nats.Publisher
	Logger          *logger.Logger
	DefaultProvider string
	DefaultModels   map[string]string
	MaxTurns        int
}

// NewTweakService creates the edit workflow.
func NewTweakService(cfg TweakConfig) *TweakService {
	return &TweakService{
		client:          cfg.Client,
		runners:         cfg.Runners,
		registry:        cfg.Registry,
		sessions:        cfg.Sessions,
		publisher:       cfg.Publisher,
		logger:          cfg.Logger,
		defaultProvider: cfg.DefaultProvider,
		defaultModels:   cfg.DefaultModels,
		maxTurns:        cfg.MaxTurns,
	}
}

// Tweak applies one change request to a stored presentation, streaming
// progress through emit. Edits to the same session are serialized; the
// second request waits rather than racing.
func (s *TweakService) Tweak(ctx context.Context, sessionID string, req model.TweakRequest, emit func(model.ProgressEvent)) {
	start := time.Now()

	log := s.logger.With(zap.String("session_id", sessionID))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("tweak panicked", zap.String("panic", fmt.Sprint(rec)))
			emit(model.ErrorEvent("internal error during edit"))
		}
	}()

	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	document, err := s.sessions.Document(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			emit(model.ErrorEvent("session not found"))
		} else {
			log.Error("document read failed", zap.Error(err))
			emit(model.ErrorEvent("could not load the presentation"))
		}
		return
	}

	modelName := req.Model
	if modelName == "" {
		modelName = s.defaultModels[s.defaultProvider]
	}

	emit(model.StatusEvent("Applying your change"))

	var (
		updated  string
		usage    model.Usage
		runLog   []model.ToolCallLogEntry
		tweakErr error
	)
	if len(req.FragmentIDs) > 0 {
		updated, usage, tweakErr = s.tweakSelected(ctx, document, modelName, req, emit)
	} else {
		updated, usage, runLog, tweakErr = s.tweakWhole(ctx, document, modelName, req, emit)
	}
	if tweakErr != nil {
		log.Error("tweak failed", zap.Error(tweakErr))
		s.finishRun(sessionID, "error", modelName, usage, runLog, start)
		emit(model.ErrorEvent(tweakErr.Error()))
		return
	}

	updated = deck.RenumberFragments(updated)

	fragments, err := deck.ExtractFragments(updated)
	if err != nil {
		log.Error("edited document invalid", zap.Error(err))
		s.finishRun(sessionID, "error", modelName, usage, runLog, start)
		emit(model.ErrorEvent("the edit produced an invalid presentation; no changes were saved"))
		return
	}

	title := documentTitle(fragments)
	meta, err := s.sessions.UpdateDocument(sessionID, updated, title, len(fragments))
	if err != nil {
		log.Error("document write failed", zap.Error(err))
		emit(model.ErrorEvent("could not store the edited presentation"))
		return
	}

	audit := BuildAudit("tweak", req.ChangeRequest, modelName, s.defaultProvider, runLog, usage)
	if err := WriteAudit(s.sessions.RunsDir(sessionID), audit); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}

	changed := changedLines(document, updated)
	emit(model.StatusEvent(fmt.Sprintf("Changed %d lines", changed)))

	s.finishRun(sessionID, "ok", modelName, usage, runLog, start)
	log.Info("presentation edited",
		zap.Int("changed_lines", changed),
		zap.Int("slide_count", len(fragments)),
		zap.Duration("duration", time.Since(start)))

	emit(model.ProgressEvent{
		Type:       model.EventComplete,
		Document:   updated,
		Title:      meta.Title,
		SlideCount: len(fragments),
		SessionID:  sessionID,
		Usage: &model.UsageReport{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.Total(),
			Cost:         audit.CostUSD,
		},
	})
}

// tweakSelected edits only the selected slides with one model call.
func (s *TweakService) tweakSelected(ctx context.Context, document, modelName string, req model.TweakRequest, emit func(model.ProgressEvent)) (string, model.Usage, error) {
	var usage model.Usage

	if s.client == nil {
		return "", usage, errors.New("no model client configured for slide edits")
	}

	fragments, err := deck.ExtractFragments(document)
	if err != nil {
		return "", usage, fmt.Errorf("stored presentation is invalid: %w", err)
	}

	byID := make(map[string]deck.Fragment, len(fragments))
	for _, f := range fragments {
		byID[f.ID] = f
	}

	selected := make([]promptFragment, 0, len(req.FragmentIDs))
	for _, id := range req.FragmentIDs {
		f, ok := byID[id]
		if !ok {
			return "", usage, fmt.Errorf("unknown slide %q", id)
		}
		selected = append(selected, promptFragment{ID: f.ID, HTML: f.HTML})
	}

	resp, err := s.client.Chat(ctx, &llm.ChatRequest{
		Model:        modelName,
		System:       selectedTweakSystemPrompt,
		Turns:        []llm.Turn{llm.UserText(buildSelectedTweakPrompt(req.ChangeRequest, selected))},
		DisableTools: true,
	})
	if err != nil {
		return "", usage, fmt.Errorf("model call failed: %w", err)
	}
	usage.Add(resp.InputTokens, resp.OutputTokens)

	updates, err := parseFragmentUpdates(llm.JoinText(resp.Parts))
	if err != nil {
		return "", usage, err
	}

	// Only the slides the user selected may change, whatever the model
	// returned.
	allowed := make(map[string]bool, len(req.FragmentIDs))
	for _, id := range req.FragmentIDs {
		allowed[id] = true
	}
	applied := updates[:0]
	for _, u := range updates {
		if allowed[u.ID] {
			applied = append(applied, u)
		}
	}
	if len(applied) == 0 {
		return "", usage, errors.New("the model returned no usable slide updates")
	}

	return deck.ReplaceFragments(document, applied), usage, nil
}

// tweakWhole runs an agent over a scratch copy of the document with
// document tools plus the shared data tools. The stored document is only
// touched after the result validates.
func (s *TweakService) tweakWhole(ctx context.Context, document, modelName string, req model.TweakRequest, emit func(model.ProgressEvent)) (string, model.Usage, []model.ToolCallLogEntry, error) {
	runner, ok := s.runners[s.defaultProvider]
	if !ok {
		return "", model.Usage{}, nil, fmt.Errorf("unsupported provider %q", s.defaultProvider)
	}

	scratch := document
	registry := s.registry.Clone()
	registerDocumentTools(registry, &scratch)

	result, err := runner.Run(ctx, &agent.RunRequest{
		Prompt:     "Change request: " + req.ChangeRequest,
		System:     wholeTweakSystemPrompt,
		Model:      modelName,
		MaxTurns:   s.maxTurns,
		Registry:   registry,
		OnProgress: emit,
	})
	if result == nil {
		result = &agent.RunResult{}
	}
	// The deliverable is the scratch document, not the final text, so a
	// missing final answer is not fatal here.
	if err != nil && err != agent.ErrNoFinalAnswer {
		return "", result.Usage, result.Log, fmt.Errorf("edit run failed: %w", err)
	}

	if scratch == document {
		return "", result.Usage, result.Log, errors.New("the model made no changes to the presentation")
	}

	return scratch, result.Usage, result.Log, nil
}

// registerDocumentTools adds the scratch-document tools to a run-scoped
// registry. Handlers close over the scratch pointer; the registry is never
// shared across runs.
func registerDocumentTools(r *tools.Registry, scratch *string) {
	r.Register(&tools.Tool{
		Spec: model.ToolSpec{
			Name:        "read_document",
			Description: "Read the current HTML of the presentation being edited. Takes no arguments.",
			Properties:  map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"document": *scratch}, nil
		},
	})

	r.Register(&tools.Tool{
		Spec: model.ToolSpec{
			Name: "replace_in_document",
			Description: "Replace text in the presentation being edited. The search string must occur in the " +
				"document exactly once; include enough surrounding context to make it unique. " +
				`Example: {"search": "<h2>Q3 Revenue</h2>", "replace": "<h2>Q3 Revenue (EUR)</h2>"}`,
			Properties: map[string]any{
				"search": map[string]any{
					"type":        "string",
					"description": "Exact text to find. Must match exactly once.",
				},
				"replace": map[string]any{
					"type":        "string",
					"description": "Replacement text.",
				},
			},
			Required: []string{"search", "replace"},
		},
		Hint: "read_document shows the exact current text; extend the search string until it is unique",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			search, _ := args["search"].(string)
			replace, _ := args["replace"].(string)
			if search == "" {
				return nil, errors.New("search is required")
			}
			switch strings.Count(*scratch, search) {
			case 0:
				return nil, errors.New("search string not found in document")
			case 1:
			default:
				return nil, errors.New("search string occurs more than once; add surrounding context")
			}
			*scratch = strings.Replace(*scratch, search, replace, 1)
			return map[string]any{"replaced": true}, nil
		},
	})
}

var fencedUpdatePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseFragmentUpdates decodes the selected-path response shape
// {"fragments":[{"id":...,"html":...}]}.
func parseFragmentUpdates(text string) ([]deck.Fragment, error) {
	candidates := make([]string, 0, 2)
	for _, m := range fencedUpdatePattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, candidate := range candidates {
		var payload struct {
			Fragments []deck.Fragment `json:"fragments"`
		}
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			continue
		}
		if len(payload.Fragments) > 0 {
			return payload.Fragments, nil
		}
	}
	return nil, errors.New("the model response did not contain slide updates")
}

// changedLines counts lines touched by an edit, for the progress summary.
func changedLines(before, after string) int {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		changed += strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") {
			changed++
		}
	}
	return changed
}

// documentTitle pulls the display title from the opening fragment.
func documentTitle(fragments []deck.Fragment) string {
	for _, f := range fragments {
		if f.Kind == deck.KindOpening && f.Title != "" {
			return f.Title
		}
	}
	return ""
}

// finishRun records metrics and telemetry for one edit run.
func (s *TweakService) finishRun(sessionID, status, modelName string, usage model.Usage, runLog []model.ToolCallLogEntry, start time.Time) {
	cost := Cost(modelName, usage)
	metrics.RecordRun("tweak", s.defaultProvider, status, modelName,
		time.Since(start).Seconds(),
		usage.InputTokens, usage.OutputTokens, cost)

	toolCalls := 0
	for _, entry := range runLog {
		if entry.Kind == model.LogToolResult {
			toolCalls++
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.publisher.PublishRunEvent(ctx, nats.RunEvent{
		SessionID:  sessionID,
		Kind:       "tweak",
		Provider:   s.defaultProvider,
		Model:      modelName,
		Status:     status,
		ToolCalls:  toolCalls,
		Tokens:     usage.Total(),
		CostUSD:    cost,
		Duration:   time.Since(start).Round(time.Millisecond).String(),
		OccurredAt: time.Now().UTC(),
	})
}
