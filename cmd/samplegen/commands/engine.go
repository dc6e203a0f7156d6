package commands

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/provider"
	"github.com/teranos/samplegen/ai/tracker"
	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/db"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/generate"
	"github.com/teranos/samplegen/logger"
	"github.com/teranos/samplegen/pulse"
)

// newClient builds the inference adapter; tests replace it
var newClient = provider.NewClient

// loadConfig loads and validates the configuration cascade
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// engine wires config, adapter, pool, ledger and generator for one command
type engine struct {
	gen      *generate.Generator
	pool     *provider.Pool
	database *sql.DB
}

func newEngine(cfg *am.Config, observer llm.StreamObserver, emitter pulse.ProgressEmitter) (*engine, error) {
	log := logger.ComponentLogger("generate")

	client, err := newClient(cfg, provider.Options{
		Observer: observer,
		Logger:   logger.ComponentLogger(cfg.Provider),
	})
	if err != nil {
		return nil, err
	}

	e := &engine{}
	var usage *tracker.UsageTracker
	if cfg.Database.Path != "" {
		database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
		if err != nil {
			return nil, errors.WithHintf(err, "check database.path (%s) or leave it empty to disable the usage ledger", cfg.Database.Path)
		}
		e.database = database
		usage = tracker.NewUsageTracker(database)
	}

	e.pool = provider.NewPool(client, provider.PoolOptions{
		Slots:   cfg.Generation.MaxConcurrent,
		Tracker: usage,
		Logger:  logger.ComponentLogger("pool"),
	})

	opts, err := generate.OptionsFromConfig(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	opts.Emitter = emitter
	opts.Logger = log
	e.gen, err = generate.New(e.pool, opts)
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the usage ledger
func (e *engine) Close() {
	if e.database != nil {
		if err := e.database.Close(); err != nil {
			logger.Logger.Warnw("Failed to close usage ledger", logger.FieldError, err)
		}
	}
}

// openLedger opens the usage ledger for read-only commands
func openLedger(cfg *am.Config, log *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.Database.Path == "" {
		return nil, errors.WithHint(
			errors.NewConfigurationError("usage ledger is disabled"),
			"set database.path in am.toml or SAMPLEGEN_DATABASE_PATH")
	}
	return db.OpenWithMigrations(cfg.Database.Path, log)
}
