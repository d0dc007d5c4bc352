package models

import "time"

// RunStatus tracks a master orchestration from submission to completion
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Department report statuses
const (
	DepartmentInProgress = "in_progress"
	DepartmentComplete   = "complete"
	DepartmentFailed     = "failed"
)

// OrchestrationRun is the persisted progress of one master orchestration
type OrchestrationRun struct {
	ID             string          `gorm:"primary_key" json:"id"`
	Prompt         string          `gorm:"type:text" json:"prompt"`
	ProjectID      string          `gorm:"index" json:"project_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Status         RunStatus       `gorm:"index" json:"status"`
	OverallQuality float64         `json:"overall_quality"`
	Completeness   float64         `json:"completeness"`
	Consistency    float64         `json:"consistency"`
	Recommendation string          `json:"recommendation,omitempty"`
	Error          string          `gorm:"type:text" json:"error,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Departments    []RunDepartment `gorm:"foreignkey:RunID" json:"departments,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName sets the table name for OrchestrationRun
func (OrchestrationRun) TableName() string {
	return "orchestration_runs"
}

// RunDepartment is the latest known state of one routed department within a run
type RunDepartment struct {
	ID           uint        `gorm:"primary_key" json:"-"`
	RunID        string      `gorm:"index" json:"run_id"`
	DepartmentID string      `json:"department_id"`
	Instructions string      `gorm:"type:text" json:"instructions"`
	Relevance    float64     `json:"relevance"`
	Status       string      `json:"status"`
	QualityScore float64     `json:"quality_score"`
	Output       string      `gorm:"type:text" json:"output,omitempty"`
	Issues       StringSlice `gorm:"type:text" json:"issues,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName sets the table name for RunDepartment
func (RunDepartment) TableName() string {
	return "run_departments"
}

// RunUpdate is a partial update of an OrchestrationRun. Nil fields are left untouched.
type RunUpdate struct {
	Status         *RunStatus
	OverallQuality *float64
	Completeness   *float64
	Consistency    *float64
	Recommendation *string
	Error          *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Fields returns the column/value pairs set on the update.
func (u RunUpdate) Fields() map[string]interface{} {
	f := map[string]interface{}{}
	if u.Status != nil {
		f["status"] = *u.Status
	}
	if u.OverallQuality != nil {
		f["overall_quality"] = *u.OverallQuality
	}
	if u.Completeness != nil {
		f["completeness"] = *u.Completeness
	}
	if u.Consistency != nil {
		f["consistency"] = *u.Consistency
	}
	if u.Recommendation != nil {
		f["recommendation"] = *u.Recommendation
	}
	if u.Error != nil {
		f["error"] = *u.Error
	}
	if u.StartedAt != nil {
		f["started_at"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		f["completed_at"] = *u.CompletedAt
	}
	return f
}

// RunEvent is published to subscribers whenever a run or one of its departments changes
type RunEvent struct {
	RunID      string            `json:"run_id"`
	Run        *OrchestrationRun `json:"run,omitempty"`
	Department *RunDepartment    `json:"department,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
