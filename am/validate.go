package am

import "github.com/teranos/samplegen/errors"

// Validate checks that the configuration is valid.
// Failures are configuration errors: fatal at startup.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal, ProviderOpenRouter:
	default:
		return errors.NewConfigurationError("provider must be %q or %q, got %q", ProviderLocal, ProviderOpenRouter, c.Provider)
	}

	g := c.Generation
	if g.BatchSize <= 0 {
		return errors.NewConfigurationError("generation.batch_size must be > 0, got %d", g.BatchSize)
	}
	if g.MaxTokens <= 0 {
		return errors.NewConfigurationError("generation.max_tokens must be > 0, got %d", g.MaxTokens)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return errors.NewConfigurationError("generation.temperature must be within [0, 2], got %g", g.Temperature)
	}
	// Max records: 0 = unbounded, negative = invalid
	if g.MaxRecords < 0 {
		return errors.NewConfigurationError("generation.max_records must be >= 0, got %d", g.MaxRecords)
	}
	if g.MaxConcurrent <= 0 {
		return errors.NewConfigurationError("generation.max_concurrent must be > 0, got %d", g.MaxConcurrent)
	}
	switch g.ScanMode {
	case ScanModeStringAware, ScanModeLegacy:
	default:
		return errors.NewConfigurationError("generation.scan_mode must be %q or %q, got %q", ScanModeStringAware, ScanModeLegacy, g.ScanMode)
	}
	switch g.PromptFormat {
	case PromptFormatLlama3, PromptFormatPlain:
	default:
		return errors.NewConfigurationError("generation.prompt_format must be %q or %q, got %q", PromptFormatLlama3, PromptFormatPlain, g.PromptFormat)
	}

	// Validate provider settings only for the provider in use
	switch c.Provider {
	case ProviderLocal:
		if c.LocalInference.BaseURL == "" {
			return errors.NewConfigurationError("local_inference.base_url cannot be empty")
		}
		if c.LocalInference.Model == "" {
			return errors.NewConfigurationError("local_inference.model cannot be empty")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.NewConfigurationError("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	case ProviderOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return errors.WithHint(
				errors.NewConfigurationError("openrouter.api_key is required when provider is openrouter"),
				"set OPENROUTER_API_KEY or openrouter.api_key in am.toml")
		}
		if c.OpenRouter.TimeoutSeconds <= 0 {
			return errors.NewConfigurationError("openrouter.timeout_seconds must be > 0, got %d", c.OpenRouter.TimeoutSeconds)
		}
		if c.OpenRouter.RequestsPerMinute < 0 {
			return errors.NewConfigurationError("openrouter.requests_per_minute must be >= 0, got %d", c.OpenRouter.RequestsPerMinute)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewConfigurationError("server.port must be within 1-65535, got %d", c.Server.Port)
	}

	return nil
}
