// Package llm defines the inference boundary: a prompt and generation
// controls go in, the fully accumulated completion text comes out.
//
// Adapters live in ai/provider (local OpenAI-compatible servers, scripted
// responses) and ai/openrouter (remote gateway).
package llm

import "context"

// Request is one completion call
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Usage represents token usage information, when the runtime reports it
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64 // USD, zero for local inference
}

// Response is the completed text of one call
type Response struct {
	Text         string
	Usage        Usage
	FinishReason string // "stop", "length", or "" when unknown
}

// Client generates text from a prompt.
// Complete blocks until a stop sequence, the token limit, or model completion,
// and returns the concatenation of every streamed increment.
//
// Errors are classified with the errors package: ErrServiceUnavailable when the
// model or runtime cannot be reached, ErrTimeout when the adapter's deadline
// passed, ErrInferenceFailed for anything else.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StreamObserver receives text increments as the model produces them.
// Observers are for display only; the engine consumes Response.Text.
type StreamObserver interface {
	OnToken(text string)
}

// StreamObserverFunc adapts a function to StreamObserver
type StreamObserverFunc func(text string)

// OnToken implements StreamObserver
func (f StreamObserverFunc) OnToken(text string) { f(text) }

// Preparer is implemented by clients that must verify or load a model before
// the first call of a request.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Identity names the provider and model behind a client
type Identity struct {
	Provider string
	Model    string
}

// Identifier is implemented by clients that can name their provider and model
type Identifier interface {
	Identity() Identity
}

// IdentityOf returns the client's identity, or "unknown" placeholders
func IdentityOf(c Client) Identity {
	if id, ok := c.(Identifier); ok {
		return id.Identity()
	}
	return Identity{Provider: "unknown", Model: "unknown"}
}
