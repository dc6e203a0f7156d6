package provider

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/ai/tracker"
	"github.com/teranos/samplegen/db"
	"github.com/teranos/samplegen/errors"
	qtest "github.com/teranos/samplegen/internal/testing"
	"github.com/teranos/samplegen/logger"
)

func TestPool_SingleSlot(t *testing.T) {
	pool := NewPool(ScriptedTexts("[]"), PoolOptions{})
	assert.Equal(t, 1, pool.Slots())

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.Error(t, err, "second acquire must wait for the held slot")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	lease.Release()
	lease.Release() // idempotent

	lease2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	lease2.Release()
}

func TestPool_MultipleSlots(t *testing.T) {
	pool := NewPool(ScriptedTexts(), PoolOptions{Slots: 2})

	a, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	b, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.Error(t, err)

	a.Release()
	b.Release()
}

func TestPool_PrepareFailureReleasesSlot(t *testing.T) {
	client := ScriptedTexts("[]")
	client.PrepareErr = errors.Mark(errors.New("model not listed"), errors.ErrServiceUnavailable)
	pool := NewPool(client, PoolOptions{})

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.Contains(t, err.Error(), "prepare scripted model scripted")

	client.PrepareErr = nil
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := pool.Acquire(ctx)
	require.NoError(t, err, "slot must be free after a failed prepare")
	lease.Release()
}

func TestLease_CompleteAfterRelease(t *testing.T) {
	client := ScriptedTexts("[]")
	lease, err := NewPool(client, PoolOptions{}).Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	_, err = lease.Complete(context.Background(), 0, llm.Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrLeaseReleased)
	assert.Empty(t, client.Calls())
}

func TestLease_RecordsUsage(t *testing.T) {
	database := qtest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))
	usage := tracker.NewUsageTracker(database)

	client := NewScriptedClient(
		ScriptedResponse{Text: `[{"id":1}]`},
		ScriptedResponse{Err: errors.Mark(errors.New("boom"), errors.ErrInferenceFailed)},
	)
	pool := NewPool(client, PoolOptions{Tracker: usage})

	ctx := logger.WithRequestID(context.Background(), "req-42")
	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer lease.Release()

	_, err = lease.Complete(ctx, 0, llm.Request{Prompt: "first"})
	require.NoError(t, err)
	_, err = lease.Complete(ctx, 1, llm.Request{Prompt: "second"})
	require.Error(t, err)

	summary, err := usage.Summary(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalCalls)
	assert.Equal(t, 1, summary.SuccessfulCalls)
	assert.Equal(t, 1, summary.Requests)

	var requestID, provider string
	var responseChars int
	require.NoError(t, database.QueryRow(
		"SELECT request_id, provider, response_chars FROM inference_usage WHERE batch_index = 0").
		Scan(&requestID, &provider, &responseChars))
	assert.Equal(t, "req-42", requestID)
	assert.Equal(t, "scripted", provider)
	assert.Equal(t, len(`[{"id":1}]`), responseChars)
}

func TestLease_LedgerFailureIsLogged(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectExec("INSERT INTO inference_usage").WillReturnError(errors.New("disk full"))

	core, logs := observer.New(zap.WarnLevel)
	pool := NewPool(ScriptedTexts("[]"), PoolOptions{
		Tracker: tracker.NewUsageTracker(mockDB),
		Logger:  zap.New(core).Sugar(),
	})

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	resp, err := lease.Complete(context.Background(), 3, llm.Request{Prompt: "p"})
	require.NoError(t, err, "ledger failures never fail the call")
	assert.Equal(t, "[]", resp.Text)

	entries := logs.FilterMessage("Failed to track usage").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()[logger.FieldBatch])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScriptedClient(t *testing.T) {
	client := ScriptedTexts("one", "two")

	for _, want := range []string{"one", "two"} {
		resp, err := client.Complete(context.Background(), llm.Request{Prompt: want})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
	}

	_, err := client.Complete(context.Background(), llm.Request{Prompt: "three"})
	require.Error(t, err)
	assert.True(t, errors.IsInferenceFailure(err))
	assert.Len(t, client.Calls(), 3)
}

func TestResponderClient(t *testing.T) {
	client := NewResponderClient(func(req llm.Request) (string, error) {
		return "echo:" + req.Prompt, nil
	})
	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", resp.Text)
}
