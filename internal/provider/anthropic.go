package provider

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMessagesClient captures the subset of the Anthropic SDK used by
// AnthropicAdapter, mirrored on goa-ai's MessagesClient seam so a fake can
// stand in for *sdk.MessageService in tests.
type anthropicMessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter executes requests against Claude's Messages API.
type AnthropicAdapter struct {
	msg          anthropicMessagesClient
	defaultModel string
}

// NewAnthropicAdapter builds an AnthropicAdapter from an API key and
// default model identifier.
func NewAnthropicAdapter(apiKey, defaultModel string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("provider: anthropic api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("provider: anthropic default model is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicAdapter{msg: &client.Messages, defaultModel: defaultModel}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Execute issues a non-streaming Messages.New call and translates the
// response into a provider-agnostic Result.
func (a *AnthropicAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("provider: anthropic messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var msgs []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return Result{}, classifyAnthropicError(err)
	}
	return translateAnthropicResponse(msg), nil
}

func translateAnthropicResponse(msg *sdk.Message) Result {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Result{
		Content:    text,
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func classifyAnthropicError(err error) error {
	return fmt.Errorf("provider: anthropic messages.new: %w", err)
}
