package openrouter

// ModelPricing contains per-token pricing for an OpenRouter model
// Prices are in USD per million tokens
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing covers the small instruction-tuned models that suit bulk sample generation
// TODO: pull live pricing from the OpenRouter /models endpoint at startup
var modelPricing = map[string]ModelPricing{
	"meta-llama/llama-3.2-1b-instruct":  {PromptPrice: 0.01, CompletionPrice: 0.01},
	"meta-llama/llama-3.2-3b-instruct":  {PromptPrice: 0.015, CompletionPrice: 0.025},
	"meta-llama/llama-3.1-8b-instruct":  {PromptPrice: 0.02, CompletionPrice: 0.03},
	"meta-llama/llama-3.1-70b-instruct": {PromptPrice: 0.12, CompletionPrice: 0.30},
	"meta-llama/llama-3.3-70b-instruct": {PromptPrice: 0.13, CompletionPrice: 0.40},
	"mistralai/mistral-7b-instruct":     {PromptPrice: 0.028, CompletionPrice: 0.054},
	"google/gemma-2-9b-it":              {PromptPrice: 0.03, CompletionPrice: 0.06},
	"qwen/qwen-2.5-7b-instruct":         {PromptPrice: 0.04, CompletionPrice: 0.10},
	"openai/gpt-4o-mini":                {PromptPrice: 0.15, CompletionPrice: 0.60},
}

// DefaultPricingFallback is the cost charged per call when model pricing is unknown
const DefaultPricingFallback = 0.01

// CalculateCost computes the cost of a call in USD from token usage
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}
	return float64(promptTokens)/1_000_000*pricing.PromptPrice +
		float64(completionTokens)/1_000_000*pricing.CompletionPrice
}

// GetPricing returns pricing information for a model, if available
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
