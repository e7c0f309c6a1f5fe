// Package bedrock implements bus.LLMBackend over AWS Bedrock's Converse
// API, grounded directly on the teacher's own
// ai/providers/bedrock/client.go (same SDK, same Converse request/
// response shape), adapted from core.AIClient's GenerateResponse
// signature to bus.LLMBackend's Complete signature.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// ModelClaude3Sonnet is the default model id when none is configured.
const ModelClaude3Sonnet = "anthropic.claude-3-sonnet-20240229-v1:0"

// Client implements bus.LLMBackend over AWS Bedrock.
type Client struct {
	bedrock      *bedrockruntime.Client
	defaultModel string
}

// NewClient wraps an already-configured Bedrock runtime client. Building
// the aws.Config (region, credentials) is the caller's concern, matching
// the teacher's own CreateAWSConfig/NewClient split.
func NewClient(cfg aws.Config, defaultModel string) *Client {
	if defaultModel == "" {
		defaultModel = ModelClaude3Sonnet
	}
	return &Client{
		bedrock:      bedrockruntime.NewFromConfig(cfg),
		defaultModel: defaultModel,
	}
}

// Complete implements bus.LLMBackend via Bedrock's Converse API.
func (c *Client) Complete(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.defaultModel),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		}
	}

	output, err := c.bedrock.Converse(ctx, input)
	if err != nil {
		return bus.LLMResponse{}, cerr.Wrap("bedrock.Complete", cerr.KindFatal, fmt.Errorf("converse: %w", err))
	}
	if output.Output == nil {
		return bus.LLMResponse{}, cerr.New("bedrock.Complete", cerr.KindFatal, "no output in bedrock response")
	}

	var content string
	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return bus.LLMResponse{}, cerr.New("bedrock.Complete", cerr.KindFatal, "unexpected output type from bedrock")
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			content += text.Value
		}
	}
	if content == "" {
		return bus.LLMResponse{}, cerr.New("bedrock.Complete", cerr.KindFatal, "no text content in bedrock response")
	}

	resp := bus.LLMResponse{Content: content}
	if output.Usage != nil {
		if output.Usage.InputTokens != nil {
			resp.PromptTokens = int(*output.Usage.InputTokens)
		}
		if output.Usage.OutputTokens != nil {
			resp.CompletionTokens = int(*output.Usage.OutputTokens)
		}
	}
	return resp, nil
}
