package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/botdesk/internal/config"
	"github.com/wolfman30/botdesk/internal/embedding"
	"github.com/wolfman30/botdesk/internal/llm"
	"github.com/wolfman30/botdesk/pkg/logging"
)

const (
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

func newBedrockRuntime(ctx context.Context, cfg *appconfig.Config) (*bedrockruntime.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// BuildLLMClient returns the configured completion client and the model id to
// request. A nil client (no credentials) makes the chat answer from fallback
// templates only.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("GEMINI_API_KEY not set; replies use fallback templates")
			return nil, "", nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return llm.NewInstrumented(client, ProviderGemini, logger), cfg.GeminiModel, nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			logger.Warn("BEDROCK_MODEL_ID not set; replies use fallback templates")
			return nil, "", nil
		}
		runtime, err := newBedrockRuntime(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return llm.NewInstrumented(llm.NewBedrockClient(runtime, cfg.BedrockModelID), ProviderBedrock, logger), cfg.BedrockModelID, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// BuildEmbedder returns the embedding client of the configured provider, or
// nil when it has no credentials. Without an embedder, knowledge retrieval and
// reindexing are disabled.
func BuildEmbedder(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (embedding.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("no embedding credentials; knowledge retrieval disabled")
			return nil, nil
		}
		e, err := embedding.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini embedder: %w", err)
		}
		return e, nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockEmbeddingModel) == "" {
			logger.Warn("no embedding model; knowledge retrieval disabled")
			return nil, nil
		}
		runtime, err := newBedrockRuntime(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return embedding.NewBedrockEmbedder(runtime, cfg.BedrockEmbeddingModel), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
