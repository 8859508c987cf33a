package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockRuntimeClient mirrors the subset of the AWS Bedrock runtime
// client used by BedrockAdapter, matching *bedrockruntime.Client so a
// fake can stand in for the real client in tests. BedrockAdapter is the
// non-frontier/local-inference-style adapter: its configured providers
// always resolve to the default (non-frontier) instruction filename
// branch of internal/instructions.
type bedrockRuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter executes requests against the AWS Bedrock Converse API.
type BedrockAdapter struct {
	runtime      bedrockRuntimeClient
	defaultModel string
}

// NewBedrockAdapter builds a BedrockAdapter from a Bedrock runtime client
// and default model/inference-profile identifier.
func NewBedrockAdapter(runtime bedrockRuntimeClient, defaultModel string) (*BedrockAdapter, error) {
	if runtime == nil {
		return nil, errors.New("provider: bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("provider: bedrock default model is required")
	}
	return &BedrockAdapter{runtime: runtime, defaultModel: defaultModel}, nil
}

func (a *BedrockAdapter) Name() string { return "bedrock" }

// Execute issues a Converse request and translates the response into a
// provider-agnostic Result.
func (a *BedrockAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("provider: bedrock messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = a.defaultModel
	}

	var system []brtypes.SystemContentBlock
	var messages []brtypes.Message
	for _, m := range req.Messages {
		block := brtypes.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case "system":
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&block},
			})
		default:
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&block},
			})
		}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		if req.Temperature > 0 {
			cfg.Temperature = aws.Float32(float32(req.Temperature))
		}
		input.InferenceConfig = cfg
	}

	out, err := a.runtime.Converse(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("provider: bedrock converse: %w", err)
	}
	return translateBedrockResponse(out), nil
}

func translateBedrockResponse(out *bedrockruntime.ConverseOutput) Result {
	var text string
	var stopReason string
	if out.StopReason != "" {
		stopReason = string(out.StopReason)
	}
	if msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += textBlock.Value
			}
		}
	}
	result := Result{Content: text, StopReason: stopReason}
	if out.Usage != nil {
		result.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return result
}
