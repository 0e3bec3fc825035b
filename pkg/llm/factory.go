package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/config"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = config.LLMProviderOpenAI
	ProviderAnthropic = config.LLMProviderAnthropic
)

// NewClient creates the client for the configured provider, wrapped in a
// circuit breaker. It returns (nil, nil) when no provider is configured.
func NewClient(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if cfg == nil || !cfg.IsEnabled() {
		return nil, nil
	}

	clientCfg := &ClientConfig{
		Endpoint:  cfg.BaseURL,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}

	var (
		client LLMClient
		err    error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		client, err = NewOpenAIClient(clientCfg, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewGuardedClient(client, NewCircuitBreaker(DefaultCircuitBreakerConfig())), nil
}
