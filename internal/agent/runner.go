// Package agent drives tool-calling LLM runs to completion.
package agent

import (
	"context"
	"errors"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
)

// ErrNoFinalAnswer signals that the run ended without a usable final text,
// even after the forced closing call. Callers decide whether that is fatal;
// generation degrades to a diagnostic deck instead of failing.
var ErrNoFinalAnswer = errors.New("agent produced no final answer")

// ProgressFunc receives live events during a run. Must be safe to call from
// the run's goroutine; a nil func disables progress reporting.
type ProgressFunc func(event model.ProgressEvent)

// RunRequest configures one agent run.
type RunRequest struct {
	Prompt     string
	System     string
	Model      string
	MaxTurns   int
	Registry   *tools.Registry
	OnProgress ProgressFunc

	// ArtifactDir, when set, gives runners that collect the final answer
	// through a file artifact a place to write it.
	ArtifactDir string
}

// RunResult is the outcome of one run. Log and Usage are populated even
// when the run errors, so callers can audit partial work.
type RunResult struct {
	FinalText string
	Log       []model.ToolCallLogEntry
	Usage     model.Usage
}

// Runner executes one agent run to completion. Implementations differ in
// who owns the conversation loop: SelfManagedRunner drives it directly,
// SdkManagedRunner delegates turn mechanics to the provider SDK.
type Runner interface {
	Run(ctx context.Context, req *RunRequest) (*RunResult, error)

	// Provider returns the provider name used for routing and metrics.
	Provider() string
}
