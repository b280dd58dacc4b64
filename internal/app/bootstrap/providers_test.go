package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/botdesk/internal/config"
	"github.com/wolfman30/botdesk/pkg/logging"
)

func TestBuildLLMClientWithoutCredentials(t *testing.T) {
	logger := logging.New("error")
	for _, provider := range []string{ProviderGemini, ProviderBedrock} {
		client, model, err := BuildLLMClient(context.Background(), &appconfig.Config{LLMProvider: provider}, logger)
		require.NoError(t, err, provider)
		assert.Nil(t, client, provider)
		assert.Empty(t, model, provider)
	}
}

func TestBuildLLMClientUnknownProvider(t *testing.T) {
	_, _, err := BuildLLMClient(context.Background(), &appconfig.Config{LLMProvider: "openai"}, nil)
	assert.Error(t, err)

	_, _, err = BuildLLMClient(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestBuildEmbedderWithoutCredentials(t *testing.T) {
	e, err := BuildEmbedder(context.Background(), &appconfig.Config{LLMProvider: ProviderGemini}, logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = BuildEmbedder(context.Background(), &appconfig.Config{LLMProvider: "nope"}, nil)
	assert.Error(t, err)
}

func TestBuildBedrockClients(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		LLMProvider:           ProviderBedrock,
		BedrockModelID:        "anthropic.claude-3-haiku-20240307-v1:0",
		BedrockEmbeddingModel: "amazon.titan-embed-text-v2:0",
		AWSRegion:             "us-east-1",
		AWSAccessKeyID:        "test",
		AWSSecretAccessKey:    "test",
		AWSEndpointOverride:   "http://localhost:4566",
	}
	client, model, err := BuildLLMClient(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, cfg.BedrockModelID, model)

	e, err := BuildEmbedder(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.NotNil(t, e)
}
