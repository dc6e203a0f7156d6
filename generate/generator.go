package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/provider"
	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/internal/util"
	"github.com/teranos/samplegen/logger"
	"github.com/teranos/samplegen/pulse"
)

// Request asks for RecordCount records shaped like Schema
type Request struct {
	RecordCount int
	Schema      Schema
}

// BatchReport describes what one batch contributed
type BatchReport struct {
	Index      int    `json:"index"`
	StartingID int    `json:"starting_id"`
	Requested  int    `json:"requested"`
	Produced   int    `json:"produced"`
	Skipped    string `json:"skipped,omitempty"` // Extraction failure, empty when the batch was used
}

// Result is the outcome of one request
type Result struct {
	RequestID string            `json:"request_id"`
	Records   []json.RawMessage `json:"records"`
	Batches   []BatchReport     `json:"batches"`
}

// JSON serializes the records as a bare array
func (r *Result) JSON() ([]byte, error) {
	return json.Marshal(r.Records)
}

// Options configures a Generator. Zero values take the defaults from am,
// except MaxRecords where 0 means unbounded.
type Options struct {
	BatchSize   int
	MaxRecords  int // 0 = unbounded
	MaxTokens   int
	Temperature *float64 // nil = am.DefaultTemperature; 0 is a valid setting
	Stop        []string
	ScanMode    ScanMode
	Prompts     *PromptBuilder        // nil = built-in llama3 instructions
	Emitter     pulse.ProgressEmitter // nil = NopEmitter
	Logger      *zap.SugaredLogger    // nil = nop logger
}

// Generator runs generation requests against a pool
type Generator struct {
	pool    *provider.Pool
	opts    Options
	emitter pulse.ProgressEmitter
	logger  *zap.SugaredLogger
}

// New creates a Generator
func New(pool *provider.Pool, opts Options) (*Generator, error) {
	if pool == nil {
		return nil, errors.NewConfigurationError("generator requires an inference pool")
	}
	if opts.BatchSize < 0 || opts.MaxTokens < 0 || opts.MaxRecords < 0 {
		return nil, errors.NewConfigurationError("batch size, max tokens and max records must not be negative")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = am.DefaultBatchSize
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = am.DefaultMaxTokens
	}
	if opts.Temperature == nil {
		opts.Temperature = util.Ptr(am.DefaultTemperature)
	} else if t := *opts.Temperature; t < 0 || t > 2 {
		return nil, errors.NewConfigurationError("temperature must be within [0, 2], got %g", t)
	}
	if len(opts.Stop) == 0 {
		opts.Stop = append([]string(nil), am.DefaultStopSequences...)
	}
	if opts.Prompts == nil {
		b, err := NewPromptBuilder(am.PromptFormatLlama3, "")
		if err != nil {
			return nil, err
		}
		opts.Prompts = b
	}

	g := &Generator{pool: pool, opts: opts, emitter: opts.Emitter, logger: opts.Logger}
	if g.emitter == nil {
		g.emitter = pulse.NopEmitter{}
	}
	if g.logger == nil {
		g.logger = zap.NewNop().Sugar()
	}
	return g, nil
}

// OptionsFromConfig maps the generation section of cfg to Options
func OptionsFromConfig(cfg *am.Config) (Options, error) {
	mode, err := ParseScanMode(cfg.Generation.ScanMode)
	if err != nil {
		return Options{}, err
	}
	prompts, err := LoadPromptBuilder(cfg.Generation.PromptFormat, cfg.Generation.PromptTemplate)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BatchSize:   cfg.Generation.BatchSize,
		MaxRecords:  cfg.Generation.MaxRecords,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: util.Ptr(cfg.Generation.Temperature),
		Stop:        cfg.StopSequences(),
		ScanMode:    mode,
		Prompts:     prompts,
	}, nil
}

// Validate checks a request before any batch runs
func (g *Generator) Validate(req Request) error {
	if req.RecordCount <= 0 {
		return errors.NewInvalidRequestError("record count must be positive, got %d", req.RecordCount)
	}
	if limit := g.opts.MaxRecords; limit > 0 && req.RecordCount > limit {
		return errors.WithHintf(
			errors.NewInvalidRequestError("record count %d exceeds the limit of %d", req.RecordCount, limit),
			"request fewer records or raise generation.max_records")
	}
	if req.Schema.IsZero() {
		return errors.NewInvalidRequestError("sample schema is required")
	}
	return nil
}

// Generate runs every batch of req in order and returns the accumulated records.
// Extraction failures skip their batch; any inference failure aborts with no result.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := g.Validate(req); err != nil {
		return nil, err
	}
	plan, err := Plan(req.RecordCount, g.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RequestID: uuid.NewString(),
		Records:   []json.RawMessage{},
		Batches:   make([]BatchReport, 0, len(plan)),
	}
	ctx = logger.WithRequestID(ctx, result.RequestID)
	log := logger.FromContext(ctx, g.logger)
	start := time.Now()

	identity := g.pool.Identity()
	log.Infow("Starting generation",
		logger.FieldTotalCount, req.RecordCount,
		logger.FieldBatchSize, g.opts.BatchSize,
		logger.FieldBatchCount, len(plan),
		logger.FieldProvider, identity.Provider,
		logger.FieldModel, identity.Model)
	g.emitter.EmitStage("plan", fmt.Sprintf("%d records in %d batches", req.RecordCount, len(plan)))

	lease, err := g.pool.Acquire(ctx)
	if err != nil {
		g.emitter.EmitError("acquire", err)
		return nil, err
	}
	defer lease.Release()
	g.emitter.EmitInfo(fmt.Sprintf("using %s model %s", identity.Provider, identity.Model))

	for _, batch := range plan {
		report, err := g.runBatch(ctx, lease, batch, req.Schema, result, log)
		if err != nil {
			g.emitter.EmitError("inference", err)
			log.Errorw("Generation aborted", logger.FieldBatch, batch.Index+1, logger.FieldError, err)
			return nil, err
		}
		result.Batches = append(result.Batches, report)
	}

	log.Infow("Generation complete",
		logger.FieldRecords, len(result.Records),
		logger.FieldTotalCount, req.RecordCount,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	g.emitter.EmitComplete(map[string]interface{}{
		"request_id": result.RequestID,
		"requested":  req.RecordCount,
		"records":    len(result.Records),
		"batches":    len(plan),
		"skipped":    result.SkippedBatches(),
	})
	return result, nil
}

func (g *Generator) runBatch(ctx context.Context, lease *provider.Lease, batch Batch, schema Schema, result *Result, log *zap.SugaredLogger) (BatchReport, error) {
	report := BatchReport{Index: batch.Index, StartingID: batch.StartingID, Requested: batch.Records}
	log = log.With(logger.FieldBatch, batch.Index+1, logger.FieldStartingID, batch.StartingID)

	text, err := g.opts.Prompts.Build(batch.StartingID, batch.Records, schema)
	if err != nil {
		return report, err
	}
	g.emitter.EmitStage("batch", fmt.Sprintf("batch %d: %d records from id %d", batch.Index+1, batch.Records, batch.StartingID))

	callStart := time.Now()
	resp, err := lease.Complete(ctx, batch.Index, llm.Request{
		Prompt:      text,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: *g.opts.Temperature,
		Stop:        g.opts.Stop,
	})
	if err != nil {
		return report, errors.Wrapf(err, "batch %d", batch.Index+1)
	}
	log.Debugw("Batch inference finished",
		logger.FieldPromptChars, len(text),
		logger.FieldTextChars, len(resp.Text),
		logger.FieldDurationMS, time.Since(callStart).Milliseconds())

	records, err := Extract(resp.Text, g.opts.ScanMode)
	if err != nil {
		report.Skipped = err.Error()
		g.emitter.EmitError("extract", errors.Wrapf(err, "batch %d ignored", batch.Index+1))
		log.Warnw("Batch ignored, bad data", logger.FieldReason, err.Error(), logger.FieldTextChars, len(resp.Text))
		return report, nil
	}

	report.Produced = len(records)
	result.Records = append(result.Records, records...)
	g.emitter.EmitProgress(report.Produced, map[string]interface{}{
		"batch": batch.Index + 1,
		"total": len(result.Records),
	})
	log.Debugw("Batch extracted", logger.FieldProduced, report.Produced, logger.FieldRecords, len(result.Records))
	return report, nil
}

// SkippedBatches counts batches that contributed nothing because extraction failed
func (r *Result) SkippedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.Skipped != "" {
			n++
		}
	}
	return n
}
