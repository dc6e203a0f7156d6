package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/provider"
	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/internal/util"
	"github.com/teranos/samplegen/logger"
)

// recordingEmitter captures progress for assertions
type recordingEmitter struct {
	mu       sync.Mutex
	stages   []string
	progress []int
	errs     []string
	infos    []string
	complete []map[string]interface{}
}

func (r *recordingEmitter) EmitStage(stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingEmitter) EmitProgress(count int, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, count)
}

func (r *recordingEmitter) EmitComplete(summary map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = append(r.complete, summary)
}

func (r *recordingEmitter) EmitError(stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, stage+": "+err.Error())
}

func (r *recordingEmitter) EmitInfo(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, message)
}

// records renders n objects with ids from start
func records(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id":%d,"name":"user %d"}`, start+i, start+i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func newGenerator(t *testing.T, client llm.Client, opts Options) (*Generator, *provider.Pool) {
	t.Helper()
	pool := provider.NewPool(client, provider.PoolOptions{Logger: zaptest.NewLogger(t).Sugar()})
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t).Sugar()
	}
	g, err := New(pool, opts)
	require.NoError(t, err)
	return g, pool
}

func userSchema(t *testing.T) Schema {
	return mustSchema(t, `{"id":1,"name":"Sue"}`)
}

func TestGenerate_AllBatches(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 10), records(11, 10), records(21, 5))
	emitter := &recordingEmitter{}
	g, _ := newGenerator(t, client, Options{Emitter: emitter})

	result, err := g.Generate(context.Background(), Request{RecordCount: 25, Schema: userSchema(t)})
	require.NoError(t, err)

	assert.Len(t, result.Records, 25)
	assert.JSONEq(t, `{"id":21,"name":"user 21"}`, string(result.Records[20]))
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, result.Batches, 3)
	assert.Equal(t, BatchReport{Index: 2, StartingID: 21, Requested: 5, Produced: 5}, result.Batches[2])
	assert.Zero(t, result.SkippedBatches())

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Prompt, "Generate exactly 10 records")
	assert.Contains(t, calls[1].Prompt, "start with the ID of 11")
	assert.Contains(t, calls[2].Prompt, "Generate exactly 5 records")
	assert.Contains(t, calls[2].Prompt, "start with the ID of 21")
	for _, c := range calls {
		assert.Equal(t, am.DefaultMaxTokens, c.MaxTokens)
		assert.InDelta(t, 0.6, c.Temperature, 1e-9)
		assert.Equal(t, []string{"<|eot_id|>", "<|end_of_text|>"}, c.Stop)
	}

	assert.Equal(t, []int{10, 10, 5}, emitter.progress)
	require.Len(t, emitter.complete, 1)
	assert.Equal(t, 25, emitter.complete[0]["records"])
	assert.Empty(t, emitter.errs)
}

func TestGenerate_ChattyBatch(t *testing.T) {
	client := provider.ScriptedTexts("Sure! Here's your data:\n[{\"id\":1}]\nHope that helps!")
	g, _ := newGenerator(t, client, Options{})

	result, err := g.Generate(context.Background(), Request{RecordCount: 1, Schema: userSchema(t)})
	require.NoError(t, err)

	out, err := result.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(out))
}

func TestGenerate_BracketlessBatchSkipped(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 10), "I'm sorry, I can't produce that.", records(21, 5))
	emitter := &recordingEmitter{}
	core, logs := observer.New(zapcore.DebugLevel)
	g, _ := newGenerator(t, client, Options{Emitter: emitter, Logger: zap.New(core).Sugar()})

	result, err := g.Generate(context.Background(), Request{RecordCount: 25, Schema: userSchema(t)})
	require.NoError(t, err)

	assert.Len(t, result.Records, 15)
	assert.Equal(t, 1, result.SkippedBatches())
	assert.Contains(t, result.Batches[1].Skipped, "no array start found")
	assert.Zero(t, result.Batches[1].Produced)

	require.Len(t, emitter.errs, 1)
	assert.True(t, strings.HasPrefix(emitter.errs[0], "extract: batch 2 ignored"))

	ignored := logs.FilterMessage("Batch ignored, bad data").All()
	require.Len(t, ignored, 1)
	assert.Equal(t, zapcore.WarnLevel, ignored[0].Level)
	fields := ignored[0].ContextMap()
	assert.Equal(t, int64(2), fields[logger.FieldBatch])
	assert.Equal(t, result.RequestID, fields[logger.FieldRequestID])
}

func TestGenerate_AllUnparseableIsEmptySuccess(t *testing.T) {
	client := provider.NewResponderClient(func(llm.Request) (string, error) {
		return "[{\"id\": 1, oops", nil
	})
	g, _ := newGenerator(t, client, Options{})

	result, err := g.Generate(context.Background(), Request{RecordCount: 5, Schema: userSchema(t)})
	require.NoError(t, err)

	out, err := result.JSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
	assert.Equal(t, 1, result.SkippedBatches())
}

func TestGenerate_InferenceFailureAborts(t *testing.T) {
	client := provider.NewScriptedClient(
		provider.ScriptedResponse{Text: records(1, 10)},
		provider.ScriptedResponse{Err: errors.Mark(errors.New("deadline exceeded"), errors.ErrTimeout)},
		provider.ScriptedResponse{Text: records(21, 5)},
	)
	emitter := &recordingEmitter{}
	g, pool := newGenerator(t, client, Options{Emitter: emitter})

	result, err := g.Generate(context.Background(), Request{RecordCount: 25, Schema: userSchema(t)})
	require.Error(t, err)
	assert.Nil(t, result, "no partial result on inference failure")
	assert.True(t, errors.IsTimeoutError(err))
	assert.True(t, errors.IsInferenceFailure(err))
	assert.Contains(t, err.Error(), "batch 2")
	assert.Len(t, client.Calls(), 2, "later batches never run")
	require.NotEmpty(t, emitter.errs)
	assert.True(t, strings.HasPrefix(emitter.errs[len(emitter.errs)-1], "inference: "))
	assert.Empty(t, emitter.complete)

	// The lease was released on the failure path
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	lease.Release()
}

func TestGenerate_PrepareFailure(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 1))
	client.PrepareErr = errors.Mark(errors.New("model llama3.2:3b not found"), errors.ErrServiceUnavailable)
	g, _ := newGenerator(t, client, Options{})

	_, err := g.Generate(context.Background(), Request{RecordCount: 1, Schema: userSchema(t)})
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.Empty(t, client.Calls())
}

func TestGenerate_InvalidRequests(t *testing.T) {
	client := provider.ScriptedTexts()
	g, _ := newGenerator(t, client, Options{MaxRecords: 50})

	tests := []struct {
		name string
		req  Request
	}{
		{"zero records", Request{RecordCount: 0, Schema: userSchema(t)}},
		{"negative records", Request{RecordCount: -4, Schema: userSchema(t)}},
		{"missing schema", Request{RecordCount: 3}},
		{"above max records", Request{RecordCount: 51, Schema: userSchema(t)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := g.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}
	assert.Empty(t, client.Calls(), "invalid requests never reach the model")

	_, err := g.Generate(context.Background(), Request{RecordCount: 51, Schema: userSchema(t)})
	assert.Contains(t, errors.FlattenHints(err), "generation.max_records")
}

func TestGenerate_CancelledWhileWaitingForSlot(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 1))
	g, pool := newGenerator(t, client, Options{})

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, Request{RecordCount: 1, Schema: userSchema(t)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, client.Calls())
}

func TestGenerate_LegacyScanMode(t *testing.T) {
	text := `[{"note":"a ] b"}]`
	g, _ := newGenerator(t, provider.ScriptedTexts(text), Options{ScanMode: ScanLegacy})
	result, err := g.Generate(context.Background(), Request{RecordCount: 1, Schema: userSchema(t)})
	require.NoError(t, err)
	assert.Empty(t, result.Records)

	g, _ = newGenerator(t, provider.ScriptedTexts(text), Options{})
	result, err = g.Generate(context.Background(), Request{RecordCount: 1, Schema: userSchema(t)})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{})
	assert.True(t, errors.IsConfigurationError(err))

	pool := provider.NewPool(provider.ScriptedTexts(), provider.PoolOptions{})
	_, err = New(pool, Options{BatchSize: -1})
	assert.True(t, errors.IsConfigurationError(err))

	_, err = New(pool, Options{Temperature: util.Ptr(2.5)})
	assert.True(t, errors.IsConfigurationError(err))
}

func TestNew_DefaultControls(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 3))
	g, _ := newGenerator(t, client, Options{})

	_, err := g.Generate(context.Background(), Request{RecordCount: 3, Schema: userSchema(t)})
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, am.DefaultTemperature, calls[0].Temperature, 1e-9)
	assert.Equal(t, am.DefaultMaxTokens, calls[0].MaxTokens)
	assert.Equal(t, am.DefaultStopSequences, calls[0].Stop)
}

func TestNew_ZeroTemperatureIsKept(t *testing.T) {
	client := provider.ScriptedTexts(records(1, 2))
	g, _ := newGenerator(t, client, Options{Temperature: util.Ptr(0.0)})

	_, err := g.Generate(context.Background(), Request{RecordCount: 2, Schema: userSchema(t)})
	require.NoError(t, err)
	require.Len(t, client.Calls(), 1)
	assert.Zero(t, client.Calls()[0].Temperature)
}

func TestOptionsFromConfig(t *testing.T) {
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, opts.BatchSize)
	assert.Equal(t, 4096, opts.MaxTokens)
	assert.Equal(t, 1000, opts.MaxRecords)
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.6, *opts.Temperature, 1e-9)
	assert.Equal(t, ScanStringAware, opts.ScanMode)
	assert.Equal(t, am.PromptFormatLlama3, opts.Prompts.Format())

	cfg.Generation.ScanMode = "naive"
	_, err = OptionsFromConfig(cfg)
	assert.True(t, errors.IsConfigurationError(err))
}
