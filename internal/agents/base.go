// Package agents implements the orchestration hierarchy: a master
// orchestrator routes work to department coordinators, which delegate to
// specialists running bounded retry-with-feedback loops.
package agents

import (
	"context"
	"io"
	"log/slog"
	"time"

	"brigade/internal/models"
	"brigade/internal/quality"
)

// Orchestration defaults applied when neither the agent nor the department
// configures a value.
const (
	DefaultMaxRetries        = 3
	DefaultPassingThreshold  = 60.0
	DefaultDepartmentQuality = 85.0
	DefaultAttemptTimeout    = 2 * time.Minute

	// UnscoredQuality is used when a capability returns neither dimension
	// scores nor an overall score.
	UnscoredQuality = 70.0
)

// TokenUsage is the token accounting for one or more invocations.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"estimated_cost"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add returns the sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		Cost:         u.Cost + o.Cost,
	}
}

// TaskContext travels with every invocation so records and prompts can be
// attributed to the run, project and department that caused them.
type TaskContext struct {
	RunID          string `json:"run_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	Attempt        int    `json:"attempt"`
}

// ProjectContext is the caller-supplied context of an orchestration request.
type ProjectContext struct {
	RunID          string `json:"run_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Background     string `json:"background,omitempty"`
}

// Invocation is the result of one successful capability call.
type Invocation struct {
	Output       string
	QualityScore *float64
	Dimensions   map[quality.Dimension]float64
	Usage        TokenUsage
	Elapsed      time.Duration
	Model        string
}

// Invoker executes one agent's instructions.
type Invoker interface {
	Invoke(ctx context.Context, agentID, prompt string, tc TaskContext) (*Invocation, error)
}

// AgentRepository looks up agents and records their performance.
type AgentRepository interface {
	FindActive(ctx context.Context, filter models.AgentFilter, sortBy string) ([]models.Agent, error)
	UpdatePerformance(ctx context.Context, agentID string, success bool, elapsed time.Duration) error
}

// DepartmentRepository looks up departments.
type DepartmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
	FindBySlug(ctx context.Context, slug string) (*models.Department, error)
	ListActive(ctx context.Context) ([]models.Department, error)
}

// ExecutionStore persists audit records and their event logs.
type ExecutionStore interface {
	Create(ctx context.Context, rec *models.AuditExecution) (string, error)
	Update(ctx context.Context, id string, upd models.ExecutionUpdate) error
	AppendEvent(ctx context.Context, id string, ev models.ExecutionEvent) error
}

// RunTracker persists orchestration progress.
type RunTracker interface {
	CreateRun(ctx context.Context, run *models.OrchestrationRun) error
	UpdateRun(ctx context.Context, id string, upd models.RunUpdate) error
	UpsertDepartment(ctx context.Context, dept models.RunDepartment) error
}

// RunObserver receives live run transitions, e.g. for an in-process monitor.
type RunObserver interface {
	RunStatus(runID string, status models.RunStatus)
	DepartmentStatus(runID string, dept models.RunDepartment)
}

// Recorder receives orchestration metrics.
type Recorder interface {
	RecordAttempt(department, outcome string)
	RecordSpecialist(department string, status models.ReviewStatus, score float64, attempts int)
	RecordDepartment(department string, quality float64, elapsed time.Duration)
	RecordOrchestration(recommendation string, overall float64, elapsed time.Duration)
	RecordTokens(department string, input, output int64)
}

// Services bundles the collaborators shared by the loop, coordinator and
// orchestrator. Construct one per process and pass it explicitly.
type Services struct {
	Agents      AgentRepository
	Departments DepartmentRepository
	Executions  ExecutionStore
	Invoker     Invoker
	Scorer      *quality.Scorer
	Recorder    Recorder
	Logger      *slog.Logger
}

func (s Services) withDefaults() Services {
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Scorer == nil {
		s.Scorer = quality.NewScorer(s.Logger)
	}
	if s.Recorder == nil {
		s.Recorder = nopRecorder{}
	}
	return s
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(string, string) {}
func (nopRecorder) RecordSpecialist(string, models.ReviewStatus, float64, int) {}
func (nopRecorder) RecordDepartment(string, float64, time.Duration) {}
func (nopRecorder) RecordOrchestration(string, float64, time.Duration) {}
func (nopRecorder) RecordTokens(string, int64, int64) {}
