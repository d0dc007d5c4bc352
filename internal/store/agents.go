package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"brigade/internal/models"
)

// AgentRepo reads agents and maintains their performance aggregate.
type AgentRepo struct {
	db *gorm.DB
}

var agentSortColumns = map[string]string{
	"success_rate": "success_rate desc, id asc",
	"latency":      "average_latency_ms asc, id asc",
	"name":         "name asc",
	"":             "id asc",
}

// FindActive returns active agents matching filter. sortBy is one of
// success_rate, latency, name or empty.
func (r *AgentRepo) FindActive(ctx context.Context, filter models.AgentFilter, sortBy string) ([]models.Agent, error) {
	order, ok := agentSortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("unknown agent sort %q", sortBy)
	}

	q := r.db.Where("active = ?", true)
	if filter.ID != "" {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.DepartmentID != "" {
		q = q.Where("department_id = ?", filter.DepartmentID)
	}
	if filter.Level != "" {
		q = q.Where("level = ?", string(filter.Level))
	}
	if filter.IsDepartmentHead != nil {
		q = q.Where("is_department_head = ?", *filter.IsDepartmentHead)
	}

	var agents []models.Agent
	if err := q.Order(order).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("finding agents: %w", err)
	}
	return agents, nil
}

// Get returns one agent regardless of its active flag.
func (r *AgentRepo) Get(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	if err := r.db.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err, "agent %s", id)
	}
	return &a, nil
}

// List returns every agent.
func (r *AgentRepo) List(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := r.db.Order("id asc").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return agents, nil
}

// Upsert inserts a or overwrites its configuration. The performance
// aggregate of an existing agent is preserved.
func (r *AgentRepo) Upsert(ctx context.Context, a *models.Agent) error {
	var existing models.Agent
	err := r.db.Where("id = ?", a.ID).First(&existing).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		return r.db.Create(a).Error
	case err != nil:
		return fmt.Errorf("loading agent %s: %w", a.ID, err)
	}

	fields := map[string]interface{}{
		"name":               a.Name,
		"level":              string(a.Level),
		"department_id":      a.DepartmentID,
		"is_department_head": a.IsDepartmentHead,
		"active":             a.Active,
		"capabilities":       a.Capabilities,
		"specialization":     a.Specialization,
		"system_prompt":      a.SystemPrompt,
		"max_retries":        a.MaxRetries,
		"token_budget":       a.TokenBudget,
		"temperature":        a.Temperature,
		"passing_threshold":  a.PassingThreshold,
	}
	if err := r.db.Model(&existing).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating agent %s: %w", a.ID, err)
	}
	return nil
}

// UpdatePerformance folds one execution into the agent's aggregate with a
// single UPDATE, so concurrent executions of the same agent never lose an
// increment. SET expressions read the pre-update row.
func (r *AgentRepo) UpdatePerformance(ctx context.Context, agentID string, success bool, elapsed time.Duration) error {
	var ok, failed int64
	if success {
		ok = 1
	} else {
		failed = 1
	}
	ms := float64(elapsed) / float64(time.Millisecond)

	res := r.db.Exec(`UPDATE agents SET
		total_executions = total_executions + 1,
		successful_executions = successful_executions + ?,
		failed_executions = failed_executions + ?,
		average_latency_ms = (average_latency_ms * total_executions + ?) / (total_executions + 1),
		success_rate = (successful_executions + ?) * 1.0 / (total_executions + 1),
		updated_at = ?
		WHERE id = ?`,
		ok, failed, ms, ok, time.Now().UTC(), agentID)
	if res.Error != nil {
		return fmt.Errorf("updating performance of %s: %w", agentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}
