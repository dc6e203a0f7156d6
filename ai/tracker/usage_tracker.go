// Package tracker records one accounting row per batch inference call in the
// SQLite usage ledger. Generated records are never stored.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/samplegen/errors"
)

// InferenceUsage represents one batch inference call
type InferenceUsage struct {
	ID               int       `json:"id" db:"id"`
	RequestID        string    `json:"request_id" db:"request_id"`
	BatchIndex       int       `json:"batch_index" db:"batch_index"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	PromptChars      int       `json:"prompt_chars" db:"prompt_chars"`
	ResponseChars    int       `json:"response_chars" db:"response_chars"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty" db:"prompt_tokens"`
	CompletionTokens *int      `json:"completion_tokens,omitempty" db:"completion_tokens"`
	Cost             *float64  `json:"cost,omitempty" db:"cost"`
	DurationMS       int64     `json:"duration_ms" db:"duration_ms"`
	Success          bool      `json:"success" db:"success"`
	ErrorMessage     *string   `json:"error_message,omitempty" db:"error_message"`
	RequestTimestamp time.Time `json:"request_timestamp" db:"request_timestamp"`
}

// UsageTracker writes and aggregates inference_usage rows
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a tracker over a migrated ledger database
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records one inference call
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *InferenceUsage) error {
	query := `
		INSERT INTO inference_usage (
			request_id, batch_index, provider, model, prompt_chars, response_chars,
			prompt_tokens, completion_tokens, cost, duration_ms, success,
			error_message, request_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.ExecContext(ctx, query,
		usage.RequestID, usage.BatchIndex, usage.Provider, usage.Model,
		usage.PromptChars, usage.ResponseChars, usage.PromptTokens,
		usage.CompletionTokens, usage.Cost, usage.DurationMS, usage.Success,
		usage.ErrorMessage, usage.RequestTimestamp.UTC(),
	)
	return errors.Wrap(err, "insert inference usage")
}

// UsageSummary represents aggregated usage since a point in time
type UsageSummary struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	SuccessRate     float64 `json:"success_rate"`
	Requests        int     `json:"requests"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
}

// Summary aggregates every call recorded at or after since
func (t *UsageTracker) Summary(ctx context.Context, since time.Time) (*UsageSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COUNT(DISTINCT request_id),
			COALESCE(SUM(COALESCE(prompt_tokens, 0) + COALESCE(completion_tokens, 0)), 0),
			COALESCE(SUM(COALESCE(cost, 0)), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM inference_usage
		WHERE request_timestamp >= ?`

	var s UsageSummary
	err := t.db.QueryRowContext(ctx, query, since.UTC()).Scan(
		&s.TotalCalls, &s.SuccessfulCalls, &s.Requests,
		&s.TotalTokens, &s.TotalCost, &s.AvgDurationMS,
	)
	if err != nil {
		return nil, errors.Wrap(err, "summarize inference usage")
	}

	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.SuccessfulCalls) / float64(s.TotalCalls)
	}
	return &s, nil
}

// ModelBreakdown represents usage statistics for one provider and model
type ModelBreakdown struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Calls         int     `json:"calls"`
	FailedCalls   int     `json:"failed_calls"`
	ResponseChars int     `json:"response_chars"`
	TotalCost     float64 `json:"total_cost"`
}

// ModelBreakdown returns usage grouped by provider and model, costliest first
func (t *UsageTracker) ModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			provider,
			model,
			COUNT(*),
			COUNT(CASE WHEN success = 0 THEN 1 END),
			SUM(response_chars),
			SUM(COALESCE(cost, 0)) AS total_cost
		FROM inference_usage
		WHERE request_timestamp >= ?
		GROUP BY provider, model
		ORDER BY total_cost DESC, provider, model`

	rows, err := t.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.Provider, &mb.Model, &mb.Calls, &mb.FailedCalls,
			&mb.ResponseChars, &mb.TotalCost); err != nil {
			return nil, errors.Wrap(err, "scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	return breakdown, errors.Wrap(rows.Err(), "iterate model breakdown")
}
