package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"brigade/internal/analytics"
	"brigade/internal/models"
)

// ExecutionRepo persists audit executions and serves them to analytics.
type ExecutionRepo struct {
	db *gorm.DB
}

// Create inserts rec, assigning an id when it has none.
func (r *ExecutionRepo) Create(ctx context.Context, rec *models.AuditExecution) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.ExecutionStatusPending
	}
	if rec.ReviewStatus == "" {
		rec.ReviewStatus = models.ReviewPending
	}
	if err := r.db.Create(rec).Error; err != nil {
		return "", fmt.Errorf("creating execution: %w", err)
	}
	return rec.ID, nil
}

// Update applies the non-nil fields of upd. Terminal records are immutable.
func (r *ExecutionRepo) Update(ctx context.Context, id string, upd models.ExecutionUpdate) error {
	fields := upd.Fields()
	if len(fields) == 0 {
		return nil
	}

	var current models.AuditExecution
	if err := r.db.Select("id, status").Where("id = ?", id).First(&current).Error; err != nil {
		return translate(err, "execution %s", id)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("execution %s is %s and cannot change", id, current.Status)
	}

	if err := r.db.Model(&models.AuditExecution{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating execution %s: %w", id, err)
	}
	return nil
}

// AppendEvent adds ev to the execution's log.
func (r *ExecutionRepo) AppendEvent(ctx context.Context, id string, ev models.ExecutionEvent) error {
	ev.ID = 0
	ev.ExecutionID = id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := r.db.Create(&ev).Error; err != nil {
		return fmt.Errorf("appending event to %s: %w", id, err)
	}
	return nil
}

// Get returns one execution with its event log in order.
func (r *ExecutionRepo) Get(ctx context.Context, id string) (*models.AuditExecution, error) {
	var rec models.AuditExecution
	err := r.db.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp asc, id asc")
	}).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, translate(err, "execution %s", id)
	}
	return &rec, nil
}

// Query implements analytics.Consumer.
func (r *ExecutionRepo) Query(ctx context.Context, f analytics.Filters, opts analytics.QueryOptions) (*analytics.QueryResult, error) {
	q := applyFilters(r.db.Model(&models.AuditExecution{}), f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting executions: %w", err)
	}
	var completed, failed int64
	if err := q.Where("status = ?", string(models.ExecutionStatusCompleted)).Count(&completed).Error; err != nil {
		return nil, fmt.Errorf("counting completed executions: %w", err)
	}
	if err := q.Where("status IN (?)", []string{
		string(models.ExecutionStatusFailed),
		string(models.ExecutionStatusTimeout),
	}).Count(&failed).Error; err != nil {
		return nil, fmt.Errorf("counting failed executions: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 || limit > analytics.MaxRecords {
		limit = analytics.MaxRecords
	}
	page := q.Order("created_at desc, id asc").Limit(limit).Offset(opts.Offset)
	switch {
	case opts.IncludeRelations:
		page = page.Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp asc, id asc")
		})
	case opts.IncludeToolCalls:
		page = page.Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Where("type = ?", models.EventToolCall).Order("timestamp asc, id asc")
		})
	}

	var recs []models.AuditExecution
	if err := page.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}

	return &analytics.QueryResult{
		Executions: recs,
		Pagination: analytics.Pagination{
			Limit:   limit,
			Offset:  opts.Offset,
			Total:   total,
			HasMore: int64(opts.Offset+len(recs)) < total,
		},
		Summary: analytics.QuerySummary{Total: total, Completed: completed, Failed: failed},
	}, nil
}

func applyFilters(q *gorm.DB, f analytics.Filters) *gorm.DB {
	if f.From != nil {
		q = q.Where("started_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("started_at <= ?", f.To.UTC())
	}
	if len(f.DepartmentIDs) > 0 {
		q = q.Where("department_id IN (?)", f.DepartmentIDs)
	}
	if len(f.AgentIDs) > 0 {
		q = q.Where("agent_id IN (?)", f.AgentIDs)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN (?)", statuses)
	}
	if f.ReviewStatus != "" {
		q = q.Where("review_status = ?", string(f.ReviewStatus))
	}
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.MinQuality != nil {
		q = q.Where("quality_score >= ?", *f.MinQuality)
	}
	if f.MaxQuality != nil {
		q = q.Where("quality_score <= ?", *f.MaxQuality)
	}
	return q
}
