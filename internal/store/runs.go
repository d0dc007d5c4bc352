package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/gorm"

	"brigade/internal/models"
)

const subscriberBuffer = 32

// RunRepo persists orchestration runs and fans their changes out to
// subscribers.
type RunRepo struct {
	db *gorm.DB

	mu   sync.Mutex
	subs map[string]map[chan models.RunEvent]struct{}
}

func NewRunRepo(db *gorm.DB) *RunRepo {
	return &RunRepo{db: db, subs: map[string]map[chan models.RunEvent]struct{}{}}
}

func (r *RunRepo) CreateRun(ctx context.Context, run *models.OrchestrationRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	snapshot := *run
	r.publish(models.RunEvent{RunID: run.ID, Run: &snapshot, Timestamp: time.Now().UTC()})
	return nil
}

func (r *RunRepo) UpdateRun(ctx context.Context, id string, upd models.RunUpdate) error {
	fields := upd.Fields()
	if len(fields) == 0 {
		return nil
	}
	res := r.db.Model(&models.OrchestrationRun{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("updating run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	var run models.OrchestrationRun
	if err := r.db.Where("id = ?", id).First(&run).Error; err == nil {
		r.publish(models.RunEvent{RunID: id, Run: &run, Timestamp: time.Now().UTC()})
	}
	return nil
}

// UpsertDepartment records the latest state of one department of a run.
func (r *RunRepo) UpsertDepartment(ctx context.Context, dept models.RunDepartment) error {
	var row models.RunDepartment
	err := r.db.Where("run_id = ? AND department_id = ?", dept.RunID, dept.DepartmentID).First(&row).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		dept.ID = 0
		if err := r.db.Create(&dept).Error; err != nil {
			return fmt.Errorf("creating department %s of run %s: %w", dept.DepartmentID, dept.RunID, err)
		}
	case err != nil:
		return fmt.Errorf("loading department %s of run %s: %w", dept.DepartmentID, dept.RunID, err)
	default:
		dept.ID = row.ID
		err := r.db.Model(&row).Updates(map[string]interface{}{
			"instructions":  dept.Instructions,
			"relevance":     dept.Relevance,
			"status":        dept.Status,
			"quality_score": dept.QualityScore,
			"output":        dept.Output,
			"issues":        dept.Issues,
		}).Error
		if err != nil {
			return fmt.Errorf("updating department %s of run %s: %w", dept.DepartmentID, dept.RunID, err)
		}
	}
	r.publish(models.RunEvent{RunID: dept.RunID, Department: &dept, Timestamp: time.Now().UTC()})
	return nil
}

// GetRun returns a run with its department rows.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*models.OrchestrationRun, error) {
	var run models.OrchestrationRun
	err := r.db.Preload("Departments", func(db *gorm.DB) *gorm.DB {
		return db.Order("relevance desc, department_id asc")
	}).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, translate(err, "run %s", id)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]models.OrchestrationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.OrchestrationRun
	if err := r.db.Order("created_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Subscribe returns a channel of changes to run id and a function that
// cancels the subscription. Slow subscribers miss events rather than block
// writers.
func (r *RunRepo) Subscribe(id string) (<-chan models.RunEvent, func()) {
	ch := make(chan models.RunEvent, subscriberBuffer)

	r.mu.Lock()
	if r.subs[id] == nil {
		r.subs[id] = map[chan models.RunEvent]struct{}{}
	}
	r.subs[id][ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[id], ch)
			if len(r.subs[id]) == 0 {
				delete(r.subs, id)
			}
			close(ch)
		})
	}
}

func (r *RunRepo) publish(ev models.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
