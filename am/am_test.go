package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/samplegen/errors"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, ProviderLocal, cfg.Provider)
	assert.Equal(t, 10, cfg.Generation.BatchSize)
	assert.Equal(t, 4096, cfg.Generation.MaxTokens)
	assert.InDelta(t, 0.6, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, []string{"<|eot_id|>", "<|end_of_text|>"}, cfg.Generation.StopSequences)
	assert.Equal(t, ScanModeStringAware, cfg.Generation.ScanMode)
	assert.Equal(t, PromptFormatLlama3, cfg.Generation.PromptFormat)
	assert.Equal(t, 1, cfg.Generation.MaxConcurrent)
	assert.Equal(t, "http://localhost:11434", cfg.LocalInference.BaseURL)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Empty(t, cfg.Database.Path)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "ollama-cloud" }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.Generation.BatchSize = 0 }, wantErr: true},
		{name: "zero max tokens", mutate: func(c *Config) { c.Generation.MaxTokens = 0 }, wantErr: true},
		{name: "temperature too high", mutate: func(c *Config) { c.Generation.Temperature = 2.5 }, wantErr: true},
		{name: "zero temperature is valid", mutate: func(c *Config) { c.Generation.Temperature = 0 }},
		{name: "zero max records is unbounded", mutate: func(c *Config) { c.Generation.MaxRecords = 0 }},
		{name: "negative max records", mutate: func(c *Config) { c.Generation.MaxRecords = -1 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Generation.MaxConcurrent = 0 }, wantErr: true},
		{name: "unknown scan mode", mutate: func(c *Config) { c.Generation.ScanMode = "naive" }, wantErr: true},
		{name: "legacy scan mode", mutate: func(c *Config) { c.Generation.ScanMode = ScanModeLegacy }},
		{name: "unknown prompt format", mutate: func(c *Config) { c.Generation.PromptFormat = "chatml" }, wantErr: true},
		{name: "empty local model", mutate: func(c *Config) { c.LocalInference.Model = "" }, wantErr: true},
		{name: "local timeout zero", mutate: func(c *Config) { c.LocalInference.TimeoutSeconds = 0 }, wantErr: true},
		{name: "openrouter without key", mutate: func(c *Config) { c.Provider = ProviderOpenRouter }, wantErr: true},
		{name: "openrouter with key", mutate: func(c *Config) {
			c.Provider = ProviderOpenRouter
			c.OpenRouter.APIKey = "sk-test"
		}},
		{name: "openrouter ignores local settings", mutate: func(c *Config) {
			c.Provider = ProviderOpenRouter
			c.OpenRouter.APIKey = "sk-test"
			c.LocalInference.Model = ""
		}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfigurationError(err), "validation errors are configuration errors: %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	content := `
provider = "openrouter"

[generation]
batch_size = 5
stop_sequences = ["</s>"]

[openrouter]
api_key = "sk-file"
requests_per_minute = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenRouter, cfg.Provider)
	assert.Equal(t, 5, cfg.Generation.BatchSize)
	assert.Equal(t, 4096, cfg.Generation.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, []string{"</s>"}, cfg.StopSequences())
	assert.Equal(t, "sk-file", cfg.OpenRouter.APIKey)
	assert.Equal(t, 30, cfg.OpenRouter.RequestsPerMinute)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestMergeConfigFiles_LaterWins(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.toml")
	project := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(user, []byte("[generation]\nbatch_size = 3\nmax_tokens = 1000\n"), DefaultFilePermissions))
	require.NoError(t, os.WriteFile(project, []byte("[generation]\nbatch_size = 7\n"), DefaultFilePermissions))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{user, filepath.Join(dir, "missing.toml"), project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Generation.BatchSize)
	assert.Equal(t, 1000, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.6, cfg.Generation.Temperature)
}

func TestStopSequences_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{}
	got := cfg.StopSequences()
	assert.Equal(t, DefaultStopSequences, got)

	got[0] = "mutated"
	assert.Equal(t, "<|eot_id|>", DefaultStopSequences[0], "callers must not alias the defaults")
}
