package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// savePresentationTool is the runner-owned artifact tool. The model is
// instructed to deliver its final structured output through it instead of
// inline text, which survives models that pad their last message with
// commentary.
const savePresentationTool = "save_presentation"

const artifactFile = "presentation.json"

// SdkManagedRunner delegates conversation mechanics to the OpenAI SDK: the
// streaming accumulator reassembles tool calls and content, and message
// history is kept in the SDK's own param types rather than normalized
// turns.
type SdkManagedRunner struct {
	client openai.Client
	logger *logger.Logger
}

// NewSdkManagedRunner creates a runner backed by the OpenAI API.
func NewSdkManagedRunner(apiKey string, log *logger.Logger) *SdkManagedRunner {
	return &SdkManagedRunner{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		logger: log,
	}
}

// NewSdkManagedRunnerWithBaseURL creates a runner against an
// OpenAI-compatible endpoint. Used by tests and self-hosted gateways.
func NewSdkManagedRunnerWithBaseURL(baseURL, apiKey string, log *logger.Logger) *SdkManagedRunner {
	return &SdkManagedRunner{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		logger: log,
	}
}

// Provider returns the provider name.
func (r *SdkManagedRunner) Provider() string {
	return "openai"
}

// Run drives the SDK loop: stream, accumulate, execute tool calls, append
// results, repeat. The final answer is the artifact written through
// save_presentation when present, otherwise the last plain-text message.
func (r *SdkManagedRunner) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	result := &RunResult{}
	var artifact string

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
		Tools: r.buildTools(req),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))

	for turn := 0; turn < maxTurns; turn++ {
		message, err := r.streamOnce(ctx, &params, req, result)
		if err != nil {
			return result, err
		}

		params.Messages = append(params.Messages, message.ToParam())

		if len(message.ToolCalls) == 0 {
			if message.Content == "" {
				params.Messages = append(params.Messages, openai.UserMessage(
					"Continue. Either call a tool or produce the final answer now."))
				continue
			}
			result.FinalText = r.resolveFinal(artifact, req.ArtifactDir, message.Content)
			return result, nil
		}

		for _, toolCall := range message.ToolCalls {
			content, saved := r.dispatch(ctx, req, toolCall, result)
			if saved != "" {
				artifact = saved
			}
			params.Messages = append(params.Messages, openai.ToolMessage(content, toolCall.ID))
		}

		// A saved artifact is the run's deliverable; no further turns needed.
		if artifact != "" {
			result.FinalText = r.resolveFinal(artifact, req.ArtifactDir, "")
			return result, nil
		}
	}

	// Budget exhausted: force a tool-free closing turn.
	params.Tools = nil
	params.Messages = append(params.Messages, openai.UserMessage(
		"You have used all available tool calls. Produce the final answer now from the information gathered so far."))
	message, err := r.streamOnce(ctx, &params, req, result)
	if err != nil {
		return result, fmt.Errorf("forced final call failed: %w", err)
	}

	final := r.resolveFinal(artifact, req.ArtifactDir, message.Content)
	if final == "" {
		return result, ErrNoFinalAnswer
	}
	result.FinalText = final
	return result, nil
}

// streamOnce performs one streaming completion and returns the accumulated
// assistant message.
func (r *SdkManagedRunner) streamOnce(ctx context.Context, params *openai.ChatCompletionNewParams, req *RunRequest, result *RunResult) (openai.ChatCompletionMessage, error) {
	stream := r.client.Chat.Completions.NewStreaming(ctx, *params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			emitProgress(req.OnProgress, model.ProgressEvent{
				Type:    model.EventTool,
				Tool:    tool.Name,
				Message: fmt.Sprintf("Calling %s", tool.Name),
			})
		}
	}
	if err := stream.Err(); err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("model call failed: %w", err)
	}
	if err := stream.Close(); err != nil {
		r.logger.Warn("stream close failed", zap.Error(err))
	}

	result.Usage.Add(int(acc.Usage.PromptTokens), int(acc.Usage.CompletionTokens))

	if len(acc.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("model returned no choices")
	}
	return acc.Choices[0].Message, nil
}

// dispatch executes one accumulated tool call and returns the tool message
// content; for save_presentation it also returns the saved artifact.
func (r *SdkManagedRunner) dispatch(ctx context.Context, req *RunRequest, toolCall openai.ChatCompletionMessageToolCallUnion, result *RunResult) (content, artifact string) {
	name := toolCall.Function.Name

	var args map[string]any
	if raw := toolCall.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			entry := model.ToolCallLogEntry{
				Timestamp: time.Now().UTC(),
				Kind:      model.LogToolResult,
				Tool:      name,
				Error:     fmt.Sprintf("unparseable arguments: %v", err),
			}
			result.Log = append(result.Log, entry)
			return encodeToolResult(model.ToolResult{
				Success: false,
				Error:   entry.Error,
				Hint:    "arguments must be a single JSON object",
			}), ""
		}
	}

	result.Log = append(result.Log, model.ToolCallLogEntry{
		Timestamp: time.Now().UTC(),
		Kind:      model.LogToolUse,
		Tool:      name,
		Input:     args,
	})

	if name == savePresentationTool {
		return r.savePresentation(req, args, result)
	}

	toolResult := req.Registry.Execute(ctx, name, args)

	entry := model.ToolCallLogEntry{
		Timestamp: time.Now().UTC(),
		Kind:      model.LogToolResult,
		Tool:      name,
		Output:    toolResult.Data,
	}
	if !toolResult.Success {
		entry.Error = toolResult.Error
		r.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.String("error", toolResult.Error))
	}
	result.Log = append(result.Log, entry)

	return encodeToolResult(toolResult), ""
}

// savePresentation captures the final structured output. When the request
// carries an artifact dir, the content is also persisted there for audit.
func (r *SdkManagedRunner) savePresentation(req *RunRequest, args map[string]any, result *RunResult) (content, artifact string) {
	raw, _ := args["content"].(string)
	if raw == "" {
		if encoded, err := json.Marshal(args); err == nil && len(args) > 0 {
			raw = string(encoded)
		}
	}
	if raw == "" {
		entry := model.ToolCallLogEntry{
			Timestamp: time.Now().UTC(),
			Kind:      model.LogToolResult,
			Tool:      savePresentationTool,
			Error:     "content is required",
		}
		result.Log = append(result.Log, entry)
		return encodeToolResult(model.ToolResult{
			Success: false,
			Error:   entry.Error,
			Hint:    `pass the full presentation JSON in the "content" field`,
		}), ""
	}

	if req.ArtifactDir != "" {
		path := filepath.Join(req.ArtifactDir, artifactFile)
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			r.logger.Warn("artifact write failed", zap.Error(err))
		}
	}

	result.Log = append(result.Log, model.ToolCallLogEntry{
		Timestamp: time.Now().UTC(),
		Kind:      model.LogToolResult,
		Tool:      savePresentationTool,
		Output:    map[string]any{"saved": true},
	})
	return encodeToolResult(model.ToolResult{Success: true, Data: map[string]any{"saved": true}}), raw
}

// resolveFinal prefers the saved artifact over inline text, re-reading the
// artifact file in case the handler and a restart raced.
func (r *SdkManagedRunner) resolveFinal(artifact, artifactDir, text string) string {
	if artifact != "" {
		return artifact
	}
	if artifactDir != "" {
		if data, err := os.ReadFile(filepath.Join(artifactDir, artifactFile)); err == nil && len(data) > 0 {
			return string(data)
		}
	}
	return text
}

// buildTools converts the registry's specs plus the artifact tool into the
// SDK's function tool params.
func (r *SdkManagedRunner) buildTools(req *RunRequest) []openai.ChatCompletionToolUnionParam {
	specs := req.Registry.Specs()
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs)+1)
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Parameters: openai.FunctionParameters{
						"type":       "object",
						"properties": spec.Properties,
						"required":   spec.Required,
					},
				},
			},
		})
	}

	tools = append(tools, openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name: savePresentationTool,
				Description: openai.String("Save the finished presentation. Call this exactly once, as your last action, " +
					`with the complete presentation JSON ({"title": ..., "sections": [...]}) in the content field.`),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"content": map[string]any{
							"type":        "string",
							"description": "The complete presentation JSON document.",
						},
					},
					"required": []string{"content"},
				},
			},
		},
	})
	return tools
}
