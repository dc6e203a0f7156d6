package am

// Config represents the samplegen configuration
type Config struct {
	Provider       string               `mapstructure:"provider"`
	Generation     GenerationConfig     `mapstructure:"generation"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
}

// Provider names accepted by the provider setting
const (
	ProviderLocal      = "local"      // Ollama, llama.cpp server, LocalAI or any OpenAI-compatible local server
	ProviderOpenRouter = "openrouter" // OpenRouter cloud gateway
)

// Prompt formats understood by the prompt builder
const (
	PromptFormatLlama3 = "llama3" // Llama 3 header and end-of-turn markers
	PromptFormatPlain  = "plain"  // No chat markers, for chat-style gateways
)

// Scan modes understood by the response extractor
const (
	ScanModeStringAware = "string_aware" // Brackets inside JSON strings are not structural
	ScanModeLegacy      = "legacy"       // Every bracket counts
)

// GenerationConfig configures batch planning, prompting and sampling controls
type GenerationConfig struct {
	BatchSize      int      `mapstructure:"batch_size"`      // Records requested per model call (default: 10)
	MaxTokens      int      `mapstructure:"max_tokens"`      // Max output tokens per batch (default: 4096)
	Temperature    float64  `mapstructure:"temperature"`     // Sampling temperature (default: 0.6)
	StopSequences  []string `mapstructure:"stop_sequences"`  // Model-specific end markers
	ScanMode       string   `mapstructure:"scan_mode"`       // string_aware | legacy
	PromptFormat   string   `mapstructure:"prompt_format"`   // llama3 | plain
	PromptTemplate string   `mapstructure:"prompt_template"` // Optional path to a custom prompt template
	MaxRecords     int      `mapstructure:"max_records"`     // Upper bound on records per request (0 = unbounded)
	MaxConcurrent  int      `mapstructure:"max_concurrent"`  // Concurrent generations per model resource (default: 1)
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, llama.cpp server)
type LocalInferenceConfig struct {
	BaseURL        string `mapstructure:"base_url"`        // e.g., "http://localhost:11434" for Ollama
	Model          string `mapstructure:"model"`           // e.g., "llama3.2:3b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Request timeout in seconds
	ContextSize    int    `mapstructure:"context_size"`    // Context window size (0 = model default)
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey            string `mapstructure:"api_key"`             // OpenRouter API key
	Model             string `mapstructure:"model"`               // e.g., "meta-llama/llama-3.2-3b-instruct"
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`     // Request timeout in seconds
	RequestsPerMinute int    `mapstructure:"requests_per_minute"` // Client-side throttle (0 = unlimited)
}

// ServerConfig configures the HTTP host
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig configures the optional SQLite usage ledger
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // Empty disables usage tracking
}

// Defaults shared by SetDefaults and the components that apply them
const (
	DefaultBatchSize     = 10
	DefaultMaxTokens     = 4096
	DefaultTemperature   = 0.6
	DefaultMaxRecords    = 1000
	DefaultServerPort    = 8080
	DefaultMaxConcurrent = 1
)

// DefaultStopSequences are the Llama 3 end-of-turn and end-of-text markers
var DefaultStopSequences = []string{"<|eot_id|>", "<|end_of_text|>"}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
