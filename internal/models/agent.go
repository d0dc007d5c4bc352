package models

import "time"

// AgentLevel is the position of an agent in the hierarchy.
type AgentLevel string

const (
	LevelMaster         AgentLevel = "master"
	LevelDepartmentHead AgentLevel = "department-head"
	LevelSpecialist     AgentLevel = "specialist"
)

// Valid reports whether l is a known level.
func (l AgentLevel) Valid() bool {
	switch l {
	case LevelMaster, LevelDepartmentHead, LevelSpecialist:
		return true
	}
	return false
}

// Agent represents an executable unit in the brigade
type Agent struct {
	ID               string      `gorm:"primary_key" json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	Level            AgentLevel  `gorm:"index" json:"level" yaml:"level"`
	DepartmentID     string      `gorm:"index" json:"department_id,omitempty" yaml:"department"`
	IsDepartmentHead bool        `json:"is_department_head" yaml:"head"`
	Active           bool        `json:"active" yaml:"active"`
	Capabilities     StringSlice `gorm:"type:text" json:"capabilities" yaml:"capabilities"`
	Specialization   string      `json:"specialization,omitempty" yaml:"specialization"`
	SystemPrompt     string      `gorm:"type:text" json:"system_prompt,omitempty" yaml:"system_prompt"`

	// Execution settings
	MaxRetries       *int     `json:"max_retries,omitempty" yaml:"max_retries"`
	TokenBudget      int      `json:"token_budget" yaml:"token_budget"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	PassingThreshold *float64 `json:"passing_threshold,omitempty" yaml:"passing_threshold"`

	// Performance aggregate, mutated only through AgentRepository.UpdatePerformance.
	TotalExecutions      int64   `json:"total_executions" yaml:"-"`
	SuccessfulExecutions int64   `json:"successful_executions" yaml:"-"`
	FailedExecutions     int64   `json:"failed_executions" yaml:"-"`
	AverageLatencyMs     float64 `json:"average_latency_ms" yaml:"-"`
	SuccessRate          float64 `gorm:"index" json:"success_rate" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// TableName sets the table name for Agent
func (Agent) TableName() string {
	return "agents"
}

// AgentFilter narrows FindActive lookups. Zero values are ignored.
type AgentFilter struct {
	ID               string
	DepartmentID     string
	Level            AgentLevel
	IsDepartmentHead *bool
}

// Bool returns a pointer to b, for optional filter fields.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for optional thresholds.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to n, for optional retry limits.
func Int(n int) *int { return &n }
