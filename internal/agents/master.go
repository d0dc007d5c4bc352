package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"brigade/internal/models"
)

// Recommendation is the master orchestrator's verdict on a result.
type Recommendation string

const (
	RecommendIngest  Recommendation = "ingest"
	RecommendModify  Recommendation = "modify"
	RecommendDiscard Recommendation = "discard"
)

// RecommendationFor maps overall quality (0..1) to a recommendation.
func RecommendationFor(overall float64) Recommendation {
	switch {
	case overall >= 0.75:
		return RecommendIngest
	case overall >= 0.5:
		return RecommendModify
	}
	return RecommendDiscard
}

// DepartmentProcessor runs one department. *Coordinator implements it.
type DepartmentProcessor interface {
	Process(ctx context.Context, departmentRef, prompt string, opts ProcessOptions) (*DepartmentResult, error)
}

// DepartmentReport is the master's view of one routed department.
type DepartmentReport struct {
	DepartmentID string            `json:"department_id"`
	Instructions string            `json:"instructions"`
	Relevance    float64           `json:"relevance"`
	Status       string            `json:"status"`
	QualityScore float64           `json:"quality_score"`
	Output       string            `json:"output,omitempty"`
	Issues       []string          `json:"issues,omitempty"`
	Result       *DepartmentResult `json:"result,omitempty"`
	Elapsed      time.Duration     `json:"elapsed"`
}

// OrchestratorResult aggregates every department report of a run.
type OrchestratorResult struct {
	RunID             string             `json:"run_id"`
	Departments       []DepartmentReport `json:"departments"`
	OverallQuality    float64            `json:"overall_quality"`
	Completeness      float64            `json:"completeness"`
	Consistency       float64            `json:"consistency"`
	ConsistencyMethod string             `json:"consistency_method"`
	Recommendation    Recommendation     `json:"recommendation"`
	Elapsed           time.Duration      `json:"elapsed"`
}

// Orchestrator fans a request out to departments and aggregates the results.
type Orchestrator struct {
	svc         Services
	router      Router
	departments DepartmentProcessor
	runs        RunTracker
	consistency ConsistencyChecker
	observer    RunObserver
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConsistencyChecker replaces the default lexical checker.
func WithConsistencyChecker(c ConsistencyChecker) OrchestratorOption {
	return func(o *Orchestrator) { o.consistency = c }
}

// WithObserver mirrors run transitions to an in-process observer.
func WithObserver(obs RunObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = obs }
}

// NewOrchestrator creates a master orchestrator. runs may be nil when
// progress does not need to be persisted.
func NewOrchestrator(svc Services, router Router, departments DepartmentProcessor, runs RunTracker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		svc:         svc.withDefaults(),
		router:      router,
		departments: departments,
		runs:        runs,
		consistency: LexicalConsistency{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the full pipeline and blocks until every department has
// finished.
func (o *Orchestrator) Orchestrate(ctx context.Context, prompt string, pc ProjectContext) (*OrchestratorResult, error) {
	runID, err := o.Enqueue(ctx, prompt, pc)
	if err != nil {
		return nil, err
	}
	pc.RunID = runID
	return o.Execute(ctx, runID, prompt, pc)
}

// Enqueue validates the request and records a queued run. Callers that do
// not want to block run Execute in the background and poll the run.
func (o *Orchestrator) Enqueue(ctx context.Context, prompt string, pc ProjectContext) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	runID := pc.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	if o.runs != nil {
		err := o.runs.CreateRun(ctx, &models.OrchestrationRun{
			ID:             runID,
			Prompt:         prompt,
			ProjectID:      pc.ProjectID,
			ConversationID: pc.ConversationID,
			Status:         models.RunQueued,
		})
		if err != nil {
			return "", fmt.Errorf("recording run: %w", err)
		}
	}
	o.notifyRun(runID, models.RunQueued)
	return runID, nil
}

// Execute runs a previously enqueued request.
func (o *Orchestrator) Execute(ctx context.Context, runID, prompt string, pc ProjectContext) (*OrchestratorResult, error) {
	start := time.Now()
	pc.RunID = runID
	log := o.svc.Logger.With("run", runID)

	o.updateRun(ctx, runID, models.RunUpdate{Status: runStatus(models.RunInProgress), StartedAt: &start})

	routes, err := o.router.Route(ctx, prompt, pc)
	if err != nil {
		o.failRun(ctx, runID, err)
		return nil, fmt.Errorf("routing request: %w", err)
	}
	routes = dedupeRoutes(routes, prompt)
	log.Info("routed request", "departments", len(routes))

	reports := make([]DepartmentReport, len(routes))
	var wg sync.WaitGroup
	for i, route := range routes {
		wg.Add(1)
		go func(i int, route RouteDecision) {
			defer wg.Done()
			reports[i] = o.runDepartment(ctx, runID, route, pc)
		}(i, route)
	}
	wg.Wait()

	result := &OrchestratorResult{
		RunID:          runID,
		Departments:    reports,
		OverallQuality: OverallQuality(reports),
		Completeness:   Completeness(reports),
	}

	cs, err := o.consistency.Check(ctx, reports)
	if err != nil {
		log.Warn("consistency check failed", "error", err)
		cs = ConsistencyScore{Score: 0, Method: "error"}
	}
	result.Consistency = cs.Score
	result.ConsistencyMethod = cs.Method
	result.Recommendation = RecommendationFor(result.OverallQuality)
	result.Elapsed = time.Since(start)

	done := time.Now()
	rec := string(result.Recommendation)
	o.updateRun(ctx, runID, models.RunUpdate{
		Status:         runStatus(models.RunCompleted),
		OverallQuality: &result.OverallQuality,
		Completeness:   &result.Completeness,
		Consistency:    &result.Consistency,
		Recommendation: &rec,
		CompletedAt:    &done,
	})
	o.svc.Recorder.RecordOrchestration(rec, result.OverallQuality, result.Elapsed)
	log.Info("orchestration complete",
		"overall_quality", result.OverallQuality,
		"completeness", result.Completeness,
		"consistency", result.Consistency,
		"recommendation", rec)
	return result, nil
}

// runDepartment never fails: errors and panics become failed reports.
func (o *Orchestrator) runDepartment(ctx context.Context, runID string, route RouteDecision, pc ProjectContext) (report DepartmentReport) {
	start := time.Now()
	report = DepartmentReport{
		DepartmentID: route.DepartmentID,
		Instructions: route.Instructions,
		Relevance:    route.Relevance,
		Status:       models.DepartmentInProgress,
	}
	o.saveDepartment(ctx, runID, report)

	defer func() {
		if r := recover(); r != nil {
			o.svc.Logger.Error("department panicked", "run", runID, "department", route.DepartmentID, "panic", r)
			report.Status = models.DepartmentFailed
			report.QualityScore = 0
			report.Issues = append(report.Issues, fmt.Sprintf("department panicked: %v", r))
		}
		report.Elapsed = time.Since(start)
		o.saveDepartment(ctx, runID, report)
	}()

	res, err := o.departments.Process(ctx, route.DepartmentID, route.Instructions, ProcessOptions{
		Context: TaskContext{RunID: runID, ProjectID: pc.ProjectID, ConversationID: pc.ConversationID},
	})
	if err != nil {
		o.svc.Logger.Warn("department failed", "run", runID, "department", route.DepartmentID, "error", err)
		report.Status = models.DepartmentFailed
		report.Issues = []string{err.Error()}
		return report
	}

	report.Status = models.DepartmentComplete
	report.QualityScore = res.QualityScore
	report.Output = res.Output
	report.Result = res
	if n := res.Metadata.Rejected; n > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d of %d specialists rejected", n, res.Metadata.SpecialistsUsed))
	}
	if n := res.Metadata.RevisionNeeded; n > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d of %d specialists need revision", n, res.Metadata.SpecialistsUsed))
	}
	return report
}

// OverallQuality is the mean department quality scaled to 0..1.
func OverallQuality(reports []DepartmentReport) float64 {
	if len(reports) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reports {
		sum += r.QualityScore
	}
	return sum / float64(len(reports)) / 100
}

// Completeness is complete departments over departments with relevance at
// least MinRelevance, capped at 1.
func Completeness(reports []DepartmentReport) float64 {
	var complete, relevant int
	for _, r := range reports {
		if r.Status == models.DepartmentComplete {
			complete++
		}
		if r.Relevance >= MinRelevance {
			relevant++
		}
	}
	if relevant == 0 {
		return 0
	}
	c := float64(complete) / float64(relevant)
	if c > 1 {
		c = 1
	}
	return c
}

// dedupeRoutes drops repeated departments, fills empty instructions with the
// original prompt and treats a zero relevance as fully relevant.
func dedupeRoutes(routes []RouteDecision, prompt string) []RouteDecision {
	seen := make(map[string]bool, len(routes))
	out := routes[:0:0]
	for _, r := range routes {
		if r.DepartmentID == "" || seen[r.DepartmentID] {
			continue
		}
		seen[r.DepartmentID] = true
		if strings.TrimSpace(r.Instructions) == "" {
			r.Instructions = prompt
		}
		if r.Relevance <= 0 {
			r.Relevance = 1
		}
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) saveDepartment(ctx context.Context, runID string, r DepartmentReport) {
	row := models.RunDepartment{
		RunID:        runID,
		DepartmentID: r.DepartmentID,
		Instructions: r.Instructions,
		Relevance:    r.Relevance,
		Status:       r.Status,
		QualityScore: r.QualityScore,
		Output:       r.Output,
		Issues:       models.StringSlice(r.Issues),
		UpdatedAt:    time.Now(),
	}
	if o.observer != nil {
		o.observer.DepartmentStatus(runID, row)
	}
	if o.runs == nil {
		return
	}
	if err := o.runs.UpsertDepartment(context.WithoutCancel(ctx), row); err != nil {
		o.svc.Logger.Warn("saving department progress", "run", runID, "department", r.DepartmentID, "error", err)
	}
}

func (o *Orchestrator) updateRun(ctx context.Context, runID string, upd models.RunUpdate) {
	if upd.Status != nil {
		o.notifyRun(runID, *upd.Status)
	}
	if o.runs == nil {
		return
	}
	if err := o.runs.UpdateRun(context.WithoutCancel(ctx), runID, upd); err != nil {
		o.svc.Logger.Warn("updating run", "run", runID, "error", err)
	}
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, err error) {
	msg := err.Error()
	now := time.Now()
	o.updateRun(ctx, runID, models.RunUpdate{Status: runStatus(models.RunFailed), Error: &msg, CompletedAt: &now})
}

func (o *Orchestrator) notifyRun(runID string, status models.RunStatus) {
	if o.observer != nil {
		o.observer.RunStatus(runID, status)
	}
}

func runStatus(s models.RunStatus) *models.RunStatus { return &s }
