package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deckforge-ai/presentation-platform/internal/model"
)

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicClient{client: &client}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Chat sends a conversation with tool declarations and normalizes the
// response into the Part union.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertTurns(req.Turns),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if !req.DisableTools && len(req.Tools) > 0 {
		params.Tools = convertToolSpecs(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message call failed: %w", err)
	}

	return &ChatResponse{
		Parts:        normalizeContent(resp.Content),
		StopReason:   string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// convertTurns converts normalized turns to Anthropic message params. Tool
// results ride in user messages, tool calls in assistant messages, per the
// Messages API contract.
func convertTurns(turns []Turn) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))

	for _, turn := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			switch p := part.(type) {
			case TextPart:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			case ToolCallPart:
				input, err := json.Marshal(p.Args)
				if err != nil {
					input = []byte("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, json.RawMessage(input), p.Name))
			case ToolResultPart:
				blocks = append(blocks, anthropic.NewToolResultBlock(p.ID, p.Content, p.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		switch turn.Role {
		case RoleModel:
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}

	return msgs
}

// convertToolSpecs converts registry tool specs to Anthropic tool params.
func convertToolSpecs(specs []model.ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(specs))

	for i, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: spec.Properties,
		}
		if len(spec.Required) > 0 {
			schema.Required = spec.Required
		}

		result[i] = anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			result[i].OfTool.Description = anthropic.String(spec.Description)
		}
	}

	return result
}

// normalizeContent converts Anthropic content blocks into the Part union.
func normalizeContent(content []anthropic.ContentBlockUnion) []Part {
	var parts []Part

	for _, block := range content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, TextPart{Text: b.Text})
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(b.Input, &args); err != nil {
				args = map[string]any{}
			}
			parts = append(parts, ToolCallPart{ID: b.ID, Name: b.Name, Args: args})
		}
	}

	return parts
}
