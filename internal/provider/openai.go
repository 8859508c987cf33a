package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIChatClient captures the subset of the OpenAI SDK used by
// OpenAIAdapter so a fake can stand in for the real client.Chat.Completions
// service in tests.
type openAIChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIAdapter executes requests against the OpenAI Chat Completions API.
type OpenAIAdapter struct {
	chat         openAIChatClient
	defaultModel string
}

// NewOpenAIAdapter builds an OpenAIAdapter from an API key and default
// model identifier.
func NewOpenAIAdapter(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("provider: openai api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("provider: openai default model is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAdapter{chat: client.Chat.Completions, defaultModel: defaultModel}, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

// Execute issues a Chat Completions request and translates the response
// into a provider-agnostic Result.
func (a *OpenAIAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("provider: openai messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = a.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := a.chat.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("provider: openai chat completion: %w", err)
	}
	return translateOpenAIResponse(resp), nil
}

func translateOpenAIResponse(resp *openai.ChatCompletion) Result {
	if len(resp.Choices) == 0 {
		return Result{}
	}
	choice := resp.Choices[0]
	return Result{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
}
