// Package analytics aggregates stored execution records into metrics,
// chart-ready series and rule-based insights. It never writes.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"brigade/internal/models"
)

// MaxRecords bounds the number of records one analysis reads.
const MaxRecords = 10000

// TimeBucket selects the granularity of time series.
type TimeBucket string

const (
	BucketHour  TimeBucket = "hour"
	BucketDay   TimeBucket = "day"
	BucketWeek  TimeBucket = "week"
	BucketMonth TimeBucket = "month"
)

// Valid reports whether b is a known bucket.
func (b TimeBucket) Valid() bool {
	switch b {
	case BucketHour, BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

var (
	ErrInvalidRange  = errors.New("from must not be after to")
	ErrInvalidBucket = errors.New("bucket must be one of hour, day, week, month")
)

// Filters selects the execution records to analyze. Zero values are ignored.
type Filters struct {
	From          *time.Time               `json:"from,omitempty"`
	To            *time.Time               `json:"to,omitempty"`
	DepartmentIDs []string                 `json:"department_ids,omitempty"`
	AgentIDs      []string                 `json:"agent_ids,omitempty"`
	Statuses      []models.ExecutionStatus `json:"statuses,omitempty"`
	ReviewStatus  models.ReviewStatus      `json:"review_status,omitempty"`
	ProjectID     string                   `json:"project_id,omitempty"`
	MinQuality    *float64                 `json:"min_quality,omitempty"`
	MaxQuality    *float64                 `json:"max_quality,omitempty"`
	Bucket        TimeBucket               `json:"bucket,omitempty"`
}

// Validate checks the filter window and bucket.
func (f Filters) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return ErrInvalidRange
	}
	if f.Bucket != "" && !f.Bucket.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, f.Bucket)
	}
	return nil
}

// QueryOptions controls how much a Consumer loads.
type QueryOptions struct {
	Limit            int
	Offset           int
	IncludeRelations bool
	IncludeToolCalls bool
}

// Pagination describes the slice of matching records returned.
type Pagination struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// QuerySummary holds counts over the whole matching set, not just the page.
type QuerySummary struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// QueryResult is one page of execution records.
type QueryResult struct {
	Executions []models.AuditExecution `json:"executions"`
	Pagination Pagination              `json:"pagination"`
	Summary    QuerySummary            `json:"summary"`
}

// Consumer reads execution records.
type Consumer interface {
	Query(ctx context.Context, f Filters, opts QueryOptions) (*QueryResult, error)
}

// Report is the full output of one analysis.
type Report struct {
	Metrics         Metrics   `json:"metrics"`
	Charts          Charts    `json:"charts"`
	Insights        []Insight `json:"insights"`
	Recommendations []string  `json:"recommendations"`
	Truncated       bool      `json:"truncated"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Engine runs analyses against a Consumer.
type Engine struct {
	consumer   Consumer
	maxRecords int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRecords lowers the per-analysis record bound. Values above
// MaxRecords are clamped.
func WithMaxRecords(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxRecords {
			e.maxRecords = n
		}
	}
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an analytics engine.
func NewEngine(consumer Consumer, opts ...Option) *Engine {
	e := &Engine{
		consumer:   consumer,
		maxRecords: MaxRecords,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze fetches at most the configured number of records matching f and
// aggregates them.
func (e *Engine) Analyze(ctx context.Context, f Filters) (*Report, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	res, err := e.consumer.Query(ctx, f, QueryOptions{Limit: e.maxRecords})
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}

	records := res.Executions
	if len(records) > e.maxRecords {
		records = records[:e.maxRecords]
	}
	report := Compute(records, f.Bucket, e.logger)
	report.Truncated = res.Pagination.HasMore || len(res.Executions) > e.maxRecords
	return report, nil
}

// Compute aggregates records in a single pass. Malformed records are logged
// and skipped.
func Compute(records []models.AuditExecution, bucket TimeBucket, logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if bucket == "" {
		bucket = BucketDay
	}

	acc := newAccumulator(bucket)
	for i := range records {
		rec := &records[i]
		if err := validateRecord(rec); err != nil {
			logger.Warn("skipping execution record", "error", err)
			acc.skipped++
			continue
		}
		acc.add(rec)
	}

	metrics := acc.metrics()
	insights := EvaluateInsights(metrics)
	return &Report{
		Metrics:         metrics,
		Charts:          acc.charts(),
		Insights:        insights,
		Recommendations: Recommendations(metrics, insights),
		GeneratedAt:     time.Now().UTC(),
	}
}
