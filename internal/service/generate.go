package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/agent"
	"github.com/deckforge-ai/presentation-platform/internal/deck"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/nats"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// GenerateService produces new presentations from free-form prompts.
type GenerateService struct {
	runners   map[string]agent.Runner
	registry  *tools.Registry
	sessions  *session.Store
	publisher *nats.Publisher
	logger    *logger.Logger

	defaultProvider string
	defaultModels   map[string]string
	maxTurns        int
}

// GenerateConfig wires a GenerateService.
type GenerateConfig struct {
	Runners         map[string]agent.Runner
	Registry        *tools.Registry
	Sessions        *session.Store
	Publisher       *nats.Publisher
	Logger          *logger.Logger
	DefaultProvider string
	DefaultModels   map[string]string // provider -> model
	MaxTurns        int
}

// NewGenerateService creates the generation workflow.
func NewGenerateService(cfg GenerateConfig) *GenerateService {
	return &GenerateService{
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

// Generate runs the full workflow and streams progress through emit. The
// stream contract is absolute: emit receives exactly one terminal event,
// complete or error, no matter what fails in between.
func (s *GenerateService) Generate(ctx context.Context, req model.GenerateRequest, emit func(model.ProgressEvent)) {
	start := time.Now()

	provider, modelName, runner, err := s.resolveRunner(req.Provider, req.Model)
	if err != nil {
		emit(model.ErrorEvent(err.Error()))
		return
	}

	log := s.logger.With(
		zap.String("provider", provider),
		zap.String("model", modelName))

	status := "error"
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("generation panicked", zap.String("panic", fmt.Sprint(rec)))
			emit(model.ErrorEvent("internal error during generation"))
		}
	}()

	emit(model.StatusEvent("Analyzing your request"))

	result, runErr := runner.Run(ctx, &agent.RunRequest{
		Prompt:     req.Prompt,
		System:     generationSystemPrompt,
		Model:      modelName,
		MaxTurns:   s.maxTurns,
		Registry:   s.registry,
		OnProgress: emit,
	})
	if result == nil {
		result = &agent.RunResult{}
	}
	if runErr != nil && runErr != agent.ErrNoFinalAnswer {
		log.Error("generation run failed", zap.Error(runErr))
		s.finishRun("", "generate", provider, modelName, status, 0, result, start)
		emit(model.ErrorEvent("generation failed: " + runErr.Error()))
		return
	}

	emit(model.StatusEvent("Assembling presentation"))

	// ErrNoFinalAnswer leaves FinalText empty; the parser degrades that to
	// a diagnostic deck rather than losing the run's tool work.
	title, sections, degraded := deck.ParseAgentOutput(result.FinalText)
	document := deck.BuildDocument(title, sections)

	fragments, err := deck.ExtractFragments(document)
	if err != nil {
		log.Error("assembled document invalid", zap.Error(err))
		emit(model.ErrorEvent("generated presentation was invalid"))
		return
	}

	meta, err := s.sessions.Create(document, title, len(fragments))
	if err != nil {
		log.Error("session create failed", zap.Error(err))
		emit(model.ErrorEvent("could not store the presentation"))
		return
	}

	audit := BuildAudit("generate", req.Prompt, modelName, provider, result.Log, result.Usage)
	if err := WriteAudit(s.sessions.RunsDir(meta.ID), audit); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}

	status = "ok"
	if degraded {
		status = "degraded"
		log.Warn("agent output unparseable, produced diagnostic deck",
			zap.String("session_id", meta.ID))
	}
	s.finishRun(meta.ID, "generate", provider, modelName, status, len(fragments), result, start)

	log.Info("presentation generated",
		zap.String("session_id", meta.ID),
		zap.Int("slide_count", len(fragments)),
		zap.Int("tokens", result.Usage.Total()),
		zap.Duration("duration", time.Since(start)))

	emit(model.ProgressEvent{
		Type:       model.EventComplete,
		Document:   document,
		Title:      title,
		SlideCount: len(fragments),
		SessionID:  meta.ID,
		Usage: &model.UsageReport{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.Total(),
			Cost:         audit.CostUSD,
		},
	})
}

// resolveRunner picks the provider and model for a request.
func (s *GenerateService) resolveRunner(provider, modelName string) (string, string, agent.Runner, error) {
	if provider == "" {
		provider = s.defaultProvider
	}
	provider = strings.ToLower(provider)

	runner, ok := s.runners[provider]
	if !ok {
		return "", "", nil, fmt.Errorf("unsupported provider %q", provider)
	}
	if modelName == "" {
		modelName = s.defaultModels[provider]
	}
	if modelName == "" {
		return "", "", nil, fmt.Errorf("no model configured for provider %q", provider)
	}
	return provider, modelName, runner, nil
}

// finishRun records metrics and publishes the telemetry event.
func (s *GenerateService) finishRun(sessionID, kind, provider, modelName, status string, slideCount int, result *agent.RunResult, start time.Time) {
	cost := Cost(modelName, result.Usage)
	metrics.RecordRun(kind, provider, status, modelName,
		time.Since(start).Seconds(),
		result.Usage.InputTokens, result.Usage.OutputTokens, cost)

	toolCalls := 0
	for _, entry := range result.Log {
		if entry.Kind == model.LogToolResult {
			toolCalls++
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.publisher.PublishRunEvent(ctx, nats.RunEvent{
		SessionID:  sessionID,
		Kind:       kind,
		Provider:   provider,
		Model:      modelName,
		Status:     status,
		SlideCount: slideCount,
		ToolCalls:  toolCalls,
		Tokens:     result.Usage.Total(),
		CostUSD:    cost,
		Duration:   time.Since(start).Round(time.Millisecond).String(),
		OccurredAt: time.Now().UTC(),
	})
}
