package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

func routerConfig() config.LLMRouterConfig {
	fastConfig := getValidLLMConfig()
	fastConfig.Model = "gemini-flash"
	powerfulConfig := getValidLLMConfig()
	powerfulConfig.Model = "gemini-pro"

	return config.LLMRouterConfig{
		DefaultFastModel:     "flash",
		DefaultPowerfulModel: "pro",
		Models: map[string]config.LLMModelConfig{
			"flash": fastConfig,
			"pro":   powerfulConfig,
		},
	}
}

func TestNewClient_BuildsRouter(t *testing.T) {
	logger, _ := setupTestLogger(t)

	client, err := NewClient(context.Background(), routerConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	router, ok := client.(*LLMRouter)
	require.True(t, ok, "NewClient should return an *LLMRouter")

	fast, ok := router.clients[schemas.TierFast].(*GeminiClient)
	require.True(t, ok)
	assert.Equal(t, "gemini-flash", fast.config.Model)

	powerful, ok := router.clients[schemas.TierPowerful].(*GeminiClient)
	require.True(t, ok)
	assert.Equal(t, "gemini-pro", powerful.config.Model)
}

func TestNewClient_Failures(t *testing.T) {
	logger, _ := setupTestLogger(t)

	t.Run("missing model alias", func(t *testing.T) {
		cfg := routerConfig()
		cfg.DefaultPowerfulModel = "ultra"
		_, err := NewClient(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "powerful tier: model 'ultra' is not defined under llm.models")
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := routerConfig()
		m := cfg.Models["flash"]
		m.APIKey = ""
		cfg.Models["flash"] = m
		_, err := NewClient(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "fast tier: Gemini API Key is required")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Provider = "openai"
		_, err := NewModelClient(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "unknown or unsupported LLM provider configured: 'openai'")
	})
}
