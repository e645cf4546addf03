package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deckforge-ai/presentation-platform/internal/model"
)

// AuditArtifact is the per-run record written next to the session. It is
// the full tool-call transcript plus a summary, for after-the-fact review
// of what data went into a deck.
type AuditArtifact struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Kind        string                   `json:"kind"` // generate or tweak
	Prompt      string                   `json:"prompt"`
	Model       string                   `json:"model"`
	Provider    string                   `json:"provider"`
	Usage       model.Usage              `json:"usage"`
	CostUSD     float64                  `json:"cost_usd"`
	Calls       []model.ToolCallLogEntry `json:"calls"`
	Summary     AuditSummary             `json:"summary"`
}

// AuditSummary aggregates the call log.
type AuditSummary struct {
	TotalCalls int            `json:"total_calls"`
	Successes  int            `json:"successes"`
	Errors     int            `json:"errors"`
	Tools      map[string]int `json:"tools"`
}

// BuildAudit assembles the artifact from a finished run.
func BuildAudit(kind, prompt, modelName, provider string, log []model.ToolCallLogEntry, usage model.Usage) AuditArtifact {
	summary := AuditSummary{Tools: make(map[string]int)}
	for _, entry := range log {
		if entry.Kind != model.LogToolResult {
			continue
		}
		summary.TotalCalls++
		summary.Tools[entry.Tool]++
		if entry.Error == "" {
			summary.Successes++
		} else {
			summary.Errors++
		}
	}

	return AuditArtifact{
		GeneratedAt: time.Now().UTC(),
		Kind:        kind,
		Prompt:      prompt,
		Model:       modelName,
		Provider:    provider,
		Usage:       usage,
		CostUSD:     Cost(modelName, usage),
		Calls:       log,
		Summary:     summary,
	}
}

// WriteAudit persists the artifact into the session's runs directory.
func WriteAudit(dir string, artifact AuditArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", artifact.GeneratedAt.Format("20060102T150405"), artifact.Kind)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}
