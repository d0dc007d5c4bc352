package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"brigade/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAgents is an in-memory AgentRepository that serializes performance
// updates per agent.
type fakeAgents struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
}

func newFakeAgents(agents ...models.Agent) *fakeAgents {
	f := &fakeAgents{agents: map[string]*models.Agent{}}
	for i := range agents {
		a := agents[i]
		f.agents[a.ID] = &a
	}
	return f
}

func (f *fakeAgents) FindActive(_ context.Context, filter models.AgentFilter, sortBy string) ([]models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Agent
	for _, a := range f.agents {
		if !a.Active {
			continue
		}
		if filter.ID != "" && a.ID != filter.ID {
			continue
		}
		if filter.DepartmentID != "" && a.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.Level != "" && a.Level != filter.Level {
			continue
		}
		if filter.IsDepartmentHead != nil && a.IsDepartmentHead != *filter.IsDepartmentHead {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if sortBy == "success_rate" && out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeAgents) UpdatePerformance(_ context.Context, agentID string, success bool, elapsed time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return models.ErrNotFound
	}
	n := float64(a.TotalExecutions)
	a.AverageLatencyMs = (a.AverageLatencyMs*n + float64(elapsed.Milliseconds())) / (n + 1)
	a.TotalExecutions++
	if success {
		a.SuccessfulExecutions++
	} else {
		a.FailedExecutions++
	}
	a.SuccessRate = float64(a.SuccessfulExecutions) / float64(a.TotalExecutions)
	return nil
}

func (f *fakeAgents) get(id string) models.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.agents[id]
}

type fakeDepartments struct {
	depts []models.Department
}

func (f *fakeDepartments) FindByID(_ context.Context, id string) (*models.Department, error) {
	for i := range f.depts {
		if f.depts[i].ID == id {
			d := f.depts[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("department %s: %w", id, models.ErrNotFound)
}

func (f *fakeDepartments) FindBySlug(_ context.Context, slug string) (*models.Department, error) {
	for i := range f.depts {
		if f.depts[i].Slug == slug {
			d := f.depts[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("department %s: %w", slug, models.ErrNotFound)
}

func (f *fakeDepartments) ListActive(context.Context) ([]models.Department, error) {
	var out []models.Department
	for _, d := range f.depts {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*models.AuditExecution
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*models.AuditExecution{}}
}

func (s *fakeStore) Create(_ context.Context, rec *models.AuditExecution) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.ID = fmt.Sprintf("exec-%d", s.seq)
	cp := *rec
	s.records[rec.ID] = &cp
	return rec.ID, nil
}

func (s *fakeStore) Update(_ context.Context, id string, upd models.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return models.ErrNotFound
	}
	if r.Status.Terminal() {
		return fmt.Errorf("execution %s is %s and cannot change", id, r.Status)
	}
	if upd.Status != nil {
		r.Status = *upd.Status
	}
	if upd.Output != nil {
		r.Output = *upd.Output
	}
	if upd.QualityScore != nil {
		q := *upd.QualityScore
		r.QualityScore = &q
	}
	if upd.ReviewStatus != nil {
		r.ReviewStatus = *upd.ReviewStatus
	}
	if upd.RetryCount != nil {
		r.RetryCount = *upd.RetryCount
	}
	if upd.ErrorCode != nil {
		r.ErrorCode = *upd.ErrorCode
	}
	if upd.ErrorMessage != nil {
		r.ErrorMessage = *upd.ErrorMessage
	}
	return nil
}

func (s *fakeStore) AppendEvent(_ context.Context, id string, ev models.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return models.ErrNotFound
	}
	ev.ExecutionID = id
	r.Events = append(r.Events, ev)
	return nil
}

func (s *fakeStore) get(id string) models.AuditExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *fakeStore) all() []models.AuditExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditExecution, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

type call struct {
	AgentID string
	Prompt  string
	Context TaskContext
}

// scriptedInvoker answers through fn and records every call.
type scriptedInvoker struct {
	mu    sync.Mutex
	calls []call
	fn    func(ctx context.Context, agentID, prompt string, tc TaskContext) (*Invocation, error)
}

func (s *scriptedInvoker) Invoke(ctx context.Context, agentID, prompt string, tc TaskContext) (*Invocation, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{AgentID: agentID, Prompt: prompt, Context: tc})
	s.mu.Unlock()
	return s.fn(ctx, agentID, prompt, tc)
}

func (s *scriptedInvoker) callsFor(agentID string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out
}

func scored(output string, score float64) *Invocation {
	return &Invocation{
		Output:       output,
		QualityScore: &score,
		Usage:        TokenUsage{InputTokens: 10, OutputTokens: 20},
		Elapsed:      5 * time.Millisecond,
	}
}

// sequence returns the scores in order, repeating the last one.
func sequence(scores ...float64) func(context.Context, string, string, TaskContext) (*Invocation, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, _ string, _ string, tc TaskContext) (*Invocation, error) {
		mu.Lock()
		defer mu.Unlock()
		s := scores[len(scores)-1]
		if i < len(scores) {
			s = scores[i]
		}
		i++
		return scored(fmt.Sprintf("draft %d", tc.Attempt), s), nil
	}
}

type recordedRuns struct {
	mu          sync.Mutex
	runs        map[string]*models.OrchestrationRun
	departments map[string]models.RunDepartment
	history     []models.RunDepartment
}

func newRecordedRuns() *recordedRuns {
	return &recordedRuns{runs: map[string]*models.OrchestrationRun{}, departments: map[string]models.RunDepartment{}}
}

func (r *recordedRuns) CreateRun(_ context.Context, run *models.OrchestrationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *recordedRuns) UpdateRun(_ context.Context, id string, upd models.RunUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return models.ErrNotFound
	}
	if upd.Status != nil {
		run.Status = *upd.Status
	}
	if upd.Recommendation != nil {
		run.Recommendation = *upd.Recommendation
	}
	if upd.Error != nil {
		run.Error = *upd.Error
	}
	return nil
}

func (r *recordedRuns) UpsertDepartment(_ context.Context, d models.RunDepartment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.departments[d.RunID+"/"+d.DepartmentID] = d
	r.history = append(r.history, d)
	return nil
}

func (r *recordedRuns) run(id string) models.OrchestrationRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.runs[id]
}
