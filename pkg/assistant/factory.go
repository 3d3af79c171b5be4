package assistant

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/config"
)

// New creates the provider client named by configuration.
func New(cfg config.AssistantConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported assistant provider %q", cfg.Provider)
	}
}
