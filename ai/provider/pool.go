package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/tracker"
	"github.com/teranos/samplegen/db"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/logger"
)

// ErrLeaseReleased is returned by Lease.Complete after Release
var ErrLeaseReleased = errors.New("inference lease already released")

// Pool guards a model resource with a fixed number of slots.
// A generation request holds one slot for its whole batch loop.
type Pool struct {
	client   llm.Client
	sem      *semaphore.Weighted
	slots    int
	identity llm.Identity
	tracker  *tracker.UsageTracker
	logger   *zap.SugaredLogger
}

// PoolOptions configures a Pool
type PoolOptions struct {
	Slots   int                   // Concurrent leases (default: 1)
	Tracker *tracker.UsageTracker // Optional usage ledger
	Logger  *zap.SugaredLogger    // nil = nop logger
}

// NewPool creates a pool over client
func NewPool(client llm.Client, opts PoolOptions) *Pool {
	slots := opts.Slots
	if slots <= 0 {
		slots = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pool{
		client:   client,
		sem:      semaphore.NewWeighted(int64(slots)),
		slots:    slots,
		identity: llm.IdentityOf(client),
		tracker:  opts.Tracker,
		logger:   log,
	}
}

// Slots returns the pool capacity
func (p *Pool) Slots() int { return p.slots }

// Identity names the provider and model behind the pool
func (p *Pool) Identity() llm.Identity { return p.identity }

// Acquire blocks until a slot is free or ctx is done, then prepares the model.
// The returned Lease must be released on every exit path.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "wait for inference slot")
	}

	lease := &Lease{pool: p}
	if preparer, ok := p.client.(llm.Preparer); ok {
		if err := preparer.Prepare(ctx); err != nil {
			lease.Release()
			return nil, errors.Wrapf(err, "prepare %s model %s", p.identity.Provider, p.identity.Model)
		}
	}
	return lease, nil
}

// Lease is one held slot
type Lease struct {
	pool     *Pool
	once     sync.Once
	mu       sync.Mutex
	released bool
}

// Release frees the slot. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()
		l.pool.sem.Release(1)
	})
}

// Complete runs one inference call under the lease and records it in the
// usage ledger when one is configured. batch is the plan index of the call.
func (l *Lease) Complete(ctx context.Context, batch int, req llm.Request) (*llm.Response, error) {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return nil, ErrLeaseReleased
	}

	start := time.Now()
	resp, err := l.pool.client.Complete(ctx, req)
	l.pool.record(ctx, batch, req, resp, err, start)
	return resp, err
}

func (p *Pool) record(ctx context.Context, batch int, req llm.Request, resp *llm.Response, callErr error, start time.Time) {
	if p.tracker == nil {
		return
	}

	usage := &tracker.InferenceUsage{
		RequestID:        logger.RequestIDFromContext(ctx),
		BatchIndex:       batch,
		Provider:         p.identity.Provider,
		Model:            p.identity.Model,
		PromptChars:      len(req.Prompt),
		DurationMS:       time.Since(start).Milliseconds(),
		Success:          callErr == nil,
		RequestTimestamp: start,
	}
	if callErr != nil {
		msg := callErr.Error()
		usage.ErrorMessage = &msg
	}
	if resp != nil {
		usage.ResponseChars = len(resp.Text)
		if resp.Usage.TotalTokens > 0 {
			usage.PromptTokens = &resp.Usage.PromptTokens
			usage.CompletionTokens = &resp.Usage.CompletionTokens
		}
		cost := resp.Usage.Cost
		usage.Cost = &cost
	}

	// Ledger writes never fail the call; they outlive a cancelled request
	if err := p.tracker.TrackUsage(context.WithoutCancel(ctx), usage); err != nil {
		log := logger.FromContext(ctx, p.logger)
		if db.IsDatabaseClosed(err) {
			log.Debugw("Usage ledger closed, row dropped", logger.FieldBatch, batch)
			return
		}
		log.Warnw("Failed to track usage", logger.FieldBatch, batch, logger.FieldError, err)
	}
}
