// Package pulse reports progress of long-running generation requests.
//
// Implementations include:
//   - CLIEmitter: pretty-printed terminal output using pterm
//   - JSONEmitter: newline-delimited JSON events for machine consumers
//   - LogEmitter: structured zap log lines, used by the HTTP server
//   - NopEmitter: discards everything
package pulse

import "time"

// ProgressEmitter defines the interface for emitting progress updates during a
// generation request. Emitters must not block for long: they run inline with
// the batch loop.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces batch progress with count and optional metadata
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// Event types carried by ProgressEvent.Type
const (
	EventStage    = "stage"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
	EventInfo     = "info"
)

// ProgressEvent represents a structured progress event
type ProgressEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NopEmitter discards all progress
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}

// Multi fans every event out to each emitter in order
type Multi []ProgressEmitter

func (m Multi) EmitStage(stage, message string) {
	for _, e := range m {
		e.EmitStage(stage, message)
	}
}

func (m Multi) EmitProgress(count int, metadata map[string]interface{}) {
	for _, e := range m {
		e.EmitProgress(count, metadata)
	}
}

func (m Multi) EmitComplete(summary map[string]interface{}) {
	for _, e := range m {
		e.EmitComplete(summary)
	}
}

func (m Multi) EmitError(stage string, err error) {
	for _, e := range m {
		e.EmitError(stage, err)
	}
}

func (m Multi) EmitInfo(message string) {
	for _, e := range m {
		e.EmitInfo(message)
	}
}

var (
	_ ProgressEmitter = NopEmitter{}
	_ ProgressEmitter = Multi(nil)
)
