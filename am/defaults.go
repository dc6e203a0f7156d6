package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderLocal)

	// Generation defaults
	v.SetDefault("generation.batch_size", DefaultBatchSize)
	v.SetDefault("generation.max_tokens", DefaultMaxTokens)
	v.SetDefault("generation.temperature", DefaultTemperature)
	v.SetDefault("generation.stop_sequences", DefaultStopSequences)
	v.SetDefault("generation.scan_mode", ScanModeStringAware)
	v.SetDefault("generation.prompt_format", PromptFormatLlama3)
	v.SetDefault("generation.prompt_template", "")
	v.SetDefault("generation.max_records", DefaultMaxRecords)
	v.SetDefault("generation.max_concurrent", DefaultMaxConcurrent)

	// Local Inference (Ollama) defaults
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 600)
	v.SetDefault("local_inference.context_size", 4096)

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "meta-llama/llama-3.2-3b-instruct")
	v.SetDefault("openrouter.timeout_seconds", 120)
	v.SetDefault("openrouter.requests_per_minute", 0)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("database.path", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "SAMPLEGEN_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")

	v.BindEnv("local_inference.base_url", "SAMPLEGEN_LOCAL_INFERENCE_BASE_URL")
	v.BindEnv("local_inference.model", "SAMPLEGEN_LOCAL_INFERENCE_MODEL")

	v.BindEnv("database.path", "SAMPLEGEN_DATABASE_PATH")
}

// StopSequences returns the configured stop sequences, or the Llama 3 markers
func (c *Config) StopSequences() []string {
	if len(c.Generation.StopSequences) == 0 {
		return append([]string(nil), DefaultStopSequences...)
	}
	return c.Generation.StopSequences
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Provider: %s, Generation: {BatchSize: %d, MaxTokens: %d}, Server: {Port: %d}}",
		c.Provider, c.Generation.BatchSize, c.Generation.MaxTokens, c.Server.Port)
}
