package pulse

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

// CLIEmitter outputs pretty-printed progress to a terminal using pterm.
// It also echoes streamed model tokens when used as a stream observer.
type CLIEmitter struct {
	verbosity int
	out       io.Writer
}

// NewCLIEmitter creates a CLI progress emitter writing to stderr,
// keeping stdout free for the generated JSON
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return NewCLIEmitterTo(os.Stderr, verbosity)
}

// NewCLIEmitterTo creates a CLI progress emitter writing to out
func NewCLIEmitterTo(out io.Writer, verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity, out: out}
}

// EmitStage prints a stage announcement
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Fprintln(e.out, fmt.Sprintf("🔄 %s: %s", pterm.LightCyan(stage), message))
}

// EmitProgress prints a batch result
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	line := fmt.Sprintf("✅ Produced %s records", pterm.Green(fmt.Sprintf("%d", count)))
	if batch, ok := metadata["batch"]; ok {
		line += fmt.Sprintf(" in batch %v", batch)
	}
	if total, ok := metadata["total"]; ok {
		line += fmt.Sprintf(" (%v so far)", total)
	}
	pterm.Fprintln(e.out, line)
}

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Success.WithWriter(e.out).Println("Generation complete!")
	if e.verbosity < 1 {
		return
	}
	for _, key := range sortedKeys(summary) {
		pterm.Fprintln(e.out, fmt.Sprintf("  %s: %v", key, summary[key]))
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Warning.WithWriter(e.out).Printfln("%s: %v", stage, err)
}

// EmitInfo prints informational message at -v and above
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.WithWriter(e.out).Println(message)
	}
}

// OnToken prints streamed model output without a newline so tokens append
func (e *CLIEmitter) OnToken(text string) {
	fmt.Fprint(e.out, pterm.LightCyan(text))
}

// JSONEmitter writes one JSON ProgressEvent per line
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	now     func() time.Time
}

// NewJSONEmitter creates a JSON progress emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w), now: time.Now}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.encoder.Encode(ProgressEvent{Type: eventType, Timestamp: e.now(), Data: data})
}

// EmitStage emits a stage event
func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit(EventStage, map[string]interface{}{"stage": stage, "message": message})
}

// EmitProgress emits a progress event; metadata is merged into data
func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{"count": count}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit(EventProgress, data)
}

// EmitComplete emits a completion event
func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit(EventComplete, summary)
}

// EmitError emits an error event
func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit(EventError, map[string]interface{}{"stage": stage, "error": err.Error()})
}

// EmitInfo emits an info event
func (e *JSONEmitter) EmitInfo(message string) {
	e.emit(EventInfo, map[string]interface{}{"message": message})
}

// LogEmitter turns progress into structured log lines
type LogEmitter struct {
	logger *zap.SugaredLogger
}

// NewLogEmitter creates an emitter over logger (nil = nop)
func NewLogEmitter(logger *zap.SugaredLogger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) EmitStage(stage string, message string) {
	e.logger.Debugw(message, "stage", stage)
}

func (e *LogEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	e.logger.Debugw("Batch progress", append([]interface{}{"count", count}, flatten(metadata)...)...)
}

func (e *LogEmitter) EmitComplete(summary map[string]interface{}) {
	e.logger.Infow("Generation complete", flatten(summary)...)
}

func (e *LogEmitter) EmitError(stage string, err error) {
	e.logger.Warnw("Generation stage failed", "stage", stage, "error", err)
}

func (e *LogEmitter) EmitInfo(message string) {
	e.logger.Infow(message)
}

// flatten turns a map into sorted key-value pairs
func flatten(m map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		kv = append(kv, k, m[k])
	}
	return kv
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ ProgressEmitter = (*CLIEmitter)(nil)
	_ ProgressEmitter = (*JSONEmitter)(nil)
	_ ProgressEmitter = (*LogEmitter)(nil)
)
