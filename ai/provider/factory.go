package provider

import (
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/openrouter"
	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
)

// Options are the runtime collaborators handed to every adapter
type Options struct {
	Observer llm.StreamObserver // Optional live token echo
	Logger   *zap.SugaredLogger // nil = nop logger
}

// NewClient creates the inference adapter selected by cfg.Provider.
// This factory function centralizes provider selection logic.
func NewClient(cfg *am.Config, opts Options) (llm.Client, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderTypeLocal:
		return NewLocalProvider(LocalConfig{
			BaseURL:        cfg.LocalInference.BaseURL,
			Model:          cfg.LocalInference.Model,
			TimeoutSeconds: cfg.LocalInference.TimeoutSeconds,
			ContextSize:    cfg.LocalInference.ContextSize,
			Observer:       opts.Observer,
			Logger:         opts.Logger,
		}), nil
	case ProviderTypeOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			return nil, errors.WithHint(
				errors.NewConfigurationError("openrouter.api_key is required when provider is openrouter"),
				"set OPENROUTER_API_KEY or openrouter.api_key in am.toml")
		}
		return openrouter.NewClient(openrouter.Config{
			APIKey:            cfg.OpenRouter.APIKey,
			Model:             cfg.OpenRouter.Model,
			TimeoutSeconds:    cfg.OpenRouter.TimeoutSeconds,
			RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
			Observer:          opts.Observer,
			Logger:            opts.Logger,
		}), nil
	default:
		return nil, errors.NewConfigurationError("provider %q cannot be built from configuration", provider)
	}
}

// ParseProvider converts a configured provider name to a ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai", "llamacpp", "":
		return ProviderTypeLocal, nil
	case "openrouter", "or":
		return ProviderTypeOpenRouter, nil
	default:
		return "", errors.NewConfigurationError("unknown provider: %s (valid: local, openrouter)", s)
	}
}

var _ llm.Client = (*openrouter.Client)(nil)
