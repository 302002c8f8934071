package ai

import (
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/errtrack/internal/config"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// NewProvider constructs the configured AI provider. It returns a nil provider
// for "none", in which case callers answer without a model.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	client := &http.Client{Timeout: cfg.InferenceTimeout}
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI, client), nil
	case config.ProviderOllama:
		return NewOllamaProvider(cfg.Ollama, client), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.Anthropic, client), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of none, openai, ollama, anthropic", cfg.Provider)
	}
}
