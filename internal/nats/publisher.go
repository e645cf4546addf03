package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	// StreamName is the name of the deck run telemetry stream.
	StreamName = "DECKRUNS"

	// SubjectPrefix is the prefix for all run telemetry subjects.
	SubjectPrefix = "decks"
)

// RunEvent is one telemetry record for a finished generation or tweak run.
type RunEvent struct {
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"` // generate or tweak
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Status     string    `json:"status"` // ok, degraded, error
	SlideCount int       `json:"slide_count,omitempty"`
	ToolCalls  int       `json:"tool_calls"`
	Tokens     int       `json:"tokens"`
	CostUSD    float64   `json:"cost_usd"`
	Duration   string    `json:"duration"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes run telemetry to JetStream. A nil Publisher is valid
// and drops everything: the platform runs fine without NATS.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher over an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream ensures the telemetry stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if p == nil || p.client == nil {
		return nil
	}
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Presentation run telemetry",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishRunEvent publishes one run record. Failures are logged, never
// returned: telemetry must not affect the request path.
func (p *Publisher) PublishRunEvent(ctx context.Context, event RunEvent) {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.client.logger.Warn("run event marshal failed", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, event.Kind, event.Status)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		p.client.logger.Warn("run event publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// Healthy reports whether telemetry is flowing.
func (p *Publisher) Healthy() bool {
	return p != nil && p.client != nil && p.client.IsConnected()
}
