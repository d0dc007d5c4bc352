// Package store implements the orchestration repositories on jinzhu/gorm.
package store

import (
	"fmt"

	"github.com/jinzhu/gorm"

	"brigade/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = models.ErrNotFound

// Store groups the repositories that share one database handle.
type Store struct {
	DB          *gorm.DB
	Agents      *AgentRepo
	Departments *DepartmentRepo
	Executions  *ExecutionRepo
	Runs        *RunRepo
}

// New wraps db. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{
		DB:          db,
		Agents:      &AgentRepo{db: db},
		Departments: &DepartmentRepo{db: db},
		Executions:  &ExecutionRepo{db: db},
		Runs:        NewRunRepo(db),
	}
}

// Models lists every persisted model, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.Department{},
		&models.Agent{},
		&models.AuditExecution{},
		&models.ExecutionEvent{},
		&models.OrchestrationRun{},
		&models.RunDepartment{},
	}
}

// translate maps gorm's not-found to ErrNotFound and adds context.
func translate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
