package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// fakeBedrockRuntime satisfies bedrockRuntimeClient without touching AWS,
// used to exercise BedrockAdapter's validation paths.
type fakeBedrockRuntime struct {
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeBedrockRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &bedrockruntime.ConverseOutput{}, nil
}
