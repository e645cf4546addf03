// Package model defines data structures for the presentation platform.
package model

import (
	"time"
)

// ToolSpec declares a callable tool to the LLM. The description is
// load-bearing prompt content: the model relies on it to learn accepted
// fields, defaults, and example invocations.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// ToolResult is the normalized outcome of a tool execution. Failures are
// carried as data, never as panics or propagated errors, so the agent can
// see them and adapt.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// LogKind distinguishes tool dispatch records from completion records.
type LogKind string

const (
	LogToolUse    LogKind = "tool_use"
	LogToolResult LogKind = "tool_result"
)

// ToolCallLogEntry is an append-only audit record created on every tool
// dispatch and every tool completion. Never mutated after append.
type ToolCallLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      LogKind        `json:"kind"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Usage is the running token tally for one agent run.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates token counts from one model response.
func (u *Usage) Add(in, out int) {
	u.InputTokens += in
	u.OutputTokens += out
}

// Total returns the combined token volume.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
