package provider

// ProviderType represents the inference backend behind an llm.Client
type ProviderType string

const (
	ProviderTypeLocal      ProviderType = "local"      // Ollama, llama.cpp server, LocalAI, or any OpenAI-compatible local server
	ProviderTypeOpenRouter ProviderType = "openrouter" // OpenRouter cloud gateway
	ProviderTypeScripted   ProviderType = "scripted"   // Canned responses for tests and dry runs
)
