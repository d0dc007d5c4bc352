package models

import "time"

// ExecutionStatus represents the lifecycle state of one agent execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusTimeout, ExecutionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTimeout, ExecutionStatusCancelled:
		return true
	}
	return false
}

// ReviewStatus is the outcome of grading an execution against its threshold
type ReviewStatus string

const (
	ReviewPending        ReviewStatus = "pending"
	ReviewApproved       ReviewStatus = "approved"
	ReviewRejected       ReviewStatus = "rejected"
	ReviewRevisionNeeded ReviewStatus = "revision-needed"
)

// Valid reports whether r is a known review status.
func (r ReviewStatus) Valid() bool {
	switch r {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewRevisionNeeded:
		return true
	}
	return false
}

// Event types for the execution log
const (
	EventToolCall  = "tool_call"
	EventLifecycle = "lifecycle"
)

// AuditExecution is the durable record of one agent invocation
type AuditExecution struct {
	ID             string `gorm:"primary_key" json:"id"`
	AgentID        string `gorm:"index" json:"agent_id"`
	DepartmentID   string `gorm:"index" json:"department_id,omitempty"`
	ProjectID      string `gorm:"index" json:"project_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	RunID          string `gorm:"index" json:"run_id,omitempty"`

	Prompt string          `gorm:"type:text" json:"prompt"`
	Output string          `gorm:"type:text" json:"output,omitempty"`
	Status ExecutionStatus `gorm:"index" json:"status"`

	QualityScore *float64 `json:"quality_score,omitempty"`
	Dimensions   ScoreMap `gorm:"type:text" json:"dimensions,omitempty"`

	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	TotalTokens   int64   `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`

	StartedAt   *time.Time `gorm:"index" json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ReviewStatus ReviewStatus `json:"review_status"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	RetryCount   int          `json:"retry_count"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorStack   string `gorm:"type:text" json:"error_stack,omitempty"`

	Events []ExecutionEvent `gorm:"foreignkey:ExecutionID" json:"events,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for AuditExecution
func (AuditExecution) TableName() string {
	return "audit_executions"
}

// HasError reports whether the record carries an error.
func (e *AuditExecution) HasError() bool {
	return e.ErrorMessage != "" || e.ErrorCode != ""
}

// Duration returns the wall time between start and completion.
func (e *AuditExecution) Duration() (time.Duration, bool) {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0, false
	}
	return e.CompletedAt.Sub(*e.StartedAt), true
}

// ExecutionEvent is one entry of the append-only log attached to an execution
type ExecutionEvent struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	ExecutionID string    `gorm:"index" json:"execution_id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Status      string    `json:"status,omitempty"`
	Message     string    `gorm:"type:text" json:"message,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TableName sets the table name for ExecutionEvent
func (ExecutionEvent) TableName() string {
	return "execution_events"
}

// ExecutionUpdate is a partial update of an AuditExecution. Nil fields are left untouched.
type ExecutionUpdate struct {
	Status        *ExecutionStatus
	Output        *string
	QualityScore  *float64
	Dimensions    ScoreMap
	InputTokens   *int64
	OutputTokens  *int64
	EstimatedCost *float64
	CompletedAt   *time.Time
	ReviewStatus  *ReviewStatus
	ReviewedAt    *time.Time
	RetryCount    *int
	ErrorMessage  *string
	ErrorCode     *string
	ErrorStack    *string
}

// Fields returns the column/value pairs set on the update.
func (u ExecutionUpdate) Fields() map[string]interface{} {
	f := map[string]interface{}{}
	if u.Status != nil {
		f["status"] = *u.Status
	}
	if u.Output != nil {
		f["output"] = *u.Output
	}
	if u.QualityScore != nil {
		f["quality_score"] = *u.QualityScore
	}
	if u.Dimensions != nil {
		f["dimensions"] = u.Dimensions
	}
	if u.InputTokens != nil {
		f["input_tokens"] = *u.InputTokens
	}
	if u.OutputTokens != nil {
		f["output_tokens"] = *u.OutputTokens
	}
	if u.InputTokens != nil || u.OutputTokens != nil {
		var total int64
		if u.InputTokens != nil {
			total += *u.InputTokens
		}
		if u.OutputTokens != nil {
			total += *u.OutputTokens
		}
		f["total_tokens"] = total
	}
	if u.EstimatedCost != nil {
		f["estimated_cost"] = *u.EstimatedCost
	}
	if u.CompletedAt != nil {
		f["completed_at"] = *u.CompletedAt
	}
	if u.ReviewStatus != nil {
		f["review_status"] = *u.ReviewStatus
	}
	if u.ReviewedAt != nil {
		f["reviewed_at"] = *u.ReviewedAt
	}
	if u.RetryCount != nil {
		f["retry_count"] = *u.RetryCount
	}
	if u.ErrorMessage != nil {
		f["error_message"] = *u.ErrorMessage
	}
	if u.ErrorCode != nil {
		f["error_code"] = *u.ErrorCode
	}
	if u.ErrorStack != nil {
		f["error_stack"] = *u.ErrorStack
	}
	return f
}
