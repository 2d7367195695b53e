package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/pkg/models"
)

// Bedrock talks to Amazon Bedrock through the Converse API. It runs at most
// one round of tool calls, then asks the model for the final envelope.
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string
	logger  zerolog.Logger
}

// NewBedrock creates a Bedrock client for the given model and region.
func NewBedrock(ctx context.Context, modelID, region string, logger zerolog.Logger) (*Bedrock, error) {
	log := logger.With().Str("component", "llm.bedrock").Logger()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
	}

	// Prefer explicit static credentials when both keys are present,
	// otherwise the default chain (profile, IAM role, etc.) applies.
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
		log.Info().Msg("Using static credentials for Bedrock")
	} else {
		log.Info().Msg("Using default credential chain for Bedrock")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info().Str("model_id", modelID).Str("region", region).Msg("Bedrock client initialized")

	return &Bedrock{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
		logger:  log,
	}, nil
}

func (b *Bedrock) Name() string { return "bedrock" }

func (b *Bedrock) Converse(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec, runTool ToolFunc) (*models.ModelEnvelope, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: toConverseMessages(messages),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(2048),
			Temperature: aws.Float32(0.2),
		},
		ToolConfig: converseTools(tools),
	}

	msg, err := b.converse(ctx, input)
	if err != nil {
		return nil, err
	}

	uses := toolUses(msg)
	if len(uses) == 0 {
		return ExtractEnvelope(messageText(msg)), nil
	}

	// Echo the assistant turn, answer every tool use in a single user
	// message, then ask again for the final envelope.
	input.Messages = append(input.Messages, *msg)

	results := make([]types.ContentBlock, 0, len(uses))
	for _, use := range uses {
		args := map[string]any{}
		if use.Input != nil {
			if err := use.Input.UnmarshalSmithyDocument(&args); err != nil {
				b.logger.Warn().Err(err).Msg("Tool input could not be decoded")
			}
		}
		result := runTool(ctx, aws.ToString(use.Name), args)
		payload, _ := json.Marshal(result)
		results = append(results, &types.ContentBlockMemberToolResult{
			Value: types.ToolResultBlock{
				ToolUseId: use.ToolUseId,
				Status:    types.ToolResultStatusSuccess,
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: string(payload)},
				},
			},
		})
	}
	input.Messages = append(input.Messages, types.Message{
		Role:    types.ConversationRoleUser,
		Content: results,
	})

	final, err := b.converse(ctx, input)
	if err != nil {
		return nil, err
	}
	return ExtractEnvelope(messageText(final)), nil
}

func (b *Bedrock) converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*types.Message, error) {
	resp, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	out, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock converse: unexpected output type %T", resp.Output)
	}
	return &out.Value, nil
}

func toConverseMessages(messages []Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

func converseTools(tools []ToolSpec) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(t.InputSchema),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: out}
}

func toolUses(msg *types.Message) []types.ToolUseBlock {
	var uses []types.ToolUseBlock
	for _, block := range msg.Content {
		if use, ok := block.(*types.ContentBlockMemberToolUse); ok {
			uses = append(uses, use.Value)
		}
	}
	return uses
}

func messageText(msg *types.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.Join(parts, "\n")
}
