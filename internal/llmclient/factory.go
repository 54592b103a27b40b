// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// NewClient builds the tier router from the configured model map.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fast, err := newTierClient(ctx, cfg, cfg.DefaultFastModel, logger)
	if err != nil {
		return nil, fmt.Errorf("fast tier: %w", err)
	}
	powerful, err := newTierClient(ctx, cfg, cfg.DefaultPowerfulModel, logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("powerful tier: %w", err)
	}
	return NewLLMRouter(logger, fast, powerful)
}

func newTierClient(ctx context.Context, cfg config.LLMRouterConfig, name string, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("model '%s' is not defined under llm.models", name)
	}
	return NewModelClient(ctx, modelCfg, logger)
}

// NewModelClient creates a client for a single model configuration.
func NewModelClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
