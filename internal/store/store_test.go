package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/analytics"
	"brigade/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(Models()...).Error)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func seedAgents(t *testing.T, s *Store, agents ...models.Agent) {
	t.Helper()
	for i := range agents {
		require.NoError(t, s.Agents.Upsert(context.Background(), &agents[i]))
	}
}

func TestFindActiveFiltersAndSorts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAgents(t, s,
		models.Agent{ID: "head", Level: models.LevelDepartmentHead, DepartmentID: "eng", IsDepartmentHead: true, Active: true},
		models.Agent{ID: "a", Level: models.LevelSpecialist, DepartmentID: "eng", Active: true, SuccessRate: 0.5},
		models.Agent{ID: "b", Level: models.LevelSpecialist, DepartmentID: "eng", Active: true, SuccessRate: 0.9},
		models.Agent{ID: "c", Level: models.LevelSpecialist, DepartmentID: "eng", Active: false, SuccessRate: 1},
		models.Agent{ID: "d", Level: models.LevelSpecialist, DepartmentID: "legal", Active: true},
	)

	got, err := s.Agents.FindActive(ctx, models.AgentFilter{
		DepartmentID:     "eng",
		Level:            models.LevelSpecialist,
		IsDepartmentHead: models.Bool(false),
	}, "success_rate")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	heads, err := s.Agents.FindActive(ctx, models.AgentFilter{DepartmentID: "eng", IsDepartmentHead: models.Bool(true)}, "")
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "head", heads[0].ID)

	_, err = s.Agents.FindActive(ctx, models.AgentFilter{}, "vibes")
	assert.Error(t, err)
}

func TestUpdatePerformanceIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAgents(t, s, models.Agent{ID: "w", Level: models.LevelSpecialist, Active: true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Agents.UpdatePerformance(ctx, "w", i%4 != 0, 100*time.Millisecond))
		}(i)
	}
	wg.Wait()

	a, err := s.Agents.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.TotalExecutions)
	assert.Equal(t, int64(15), a.SuccessfulExecutions)
	assert.Equal(t, int64(5), a.FailedExecutions)
	assert.InDelta(t, 0.75, a.SuccessRate, 1e-9)
	assert.InDelta(t, 100, a.AverageLatencyMs, 1e-6)
}

func TestUpdatePerformanceRunningAverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAgents(t, s, models.Agent{ID: "w", Active: true, Level: models.LevelSpecialist})

	require.NoError(t, s.Agents.UpdatePerformance(ctx, "w", true, 100*time.Millisecond))
	require.NoError(t, s.Agents.UpdatePerformance(ctx, "w", false, 300*time.Millisecond))

	a, err := s.Agents.Get(ctx, "w")
	require.NoError(t, err)
	assert.InDelta(t, 200, a.AverageLatencyMs, 1e-9)
	assert.InDelta(t, 0.5, a.SuccessRate, 1e-9)

	err = s.Agents.UpdatePerformance(ctx, "ghost", true, time.Second)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertKeepsPerformance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAgents(t, s, models.Agent{ID: "w", Name: "old", Active: true, Level: models.LevelSpecialist})
	require.NoError(t, s.Agents.UpdatePerformance(ctx, "w", true, time.Second))

	seedAgents(t, s, models.Agent{ID: "w", Name: "new", Active: false, Level: models.LevelSpecialist, PassingThreshold: models.Float(0)})

	a, err := s.Agents.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, "new", a.Name)
	assert.False(t, a.Active)
	require.NotNil(t, a.PassingThreshold)
	assert.Zero(t, *a.PassingThreshold)
	assert.Equal(t, int64(1), a.TotalExecutions)
}

func TestDepartmentLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, d := range []models.Department{
		{ID: "d1", Slug: "engineering", Name: "Engineering", Keywords: models.StringSlice{"code"}, Active: true, MinQualityThreshold: models.Float(70)},
		{ID: "d2", Slug: "legal", Name: "Legal", Active: false},
	} {
		d := d
		require.NoError(t, s.Departments.Upsert(ctx, &d))
	}

	d, err := s.Departments.FindBySlug(ctx, "Engineering")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, models.StringSlice{"code"}, d.Keywords)
	assert.InDelta(t, 70, *d.MinQualityThreshold, 1e-9)

	_, err = s.Departments.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := s.Departments.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "engineering", active[0].Slug)
}

func TestExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC()

	id, err := s.Executions.Create(ctx, &models.AuditExecution{
		AgentID:   "w",
		Prompt:    "write",
		Status:    models.ExecutionStatusRunning,
		StartedAt: &started,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, s.Executions.AppendEvent(ctx, id, models.ExecutionEvent{Type: models.EventToolCall, Name: "invoke"}))
	require.NoError(t, s.Executions.AppendEvent(ctx, id, models.ExecutionEvent{Type: models.EventLifecycle, Name: "done"}))

	status := models.ExecutionStatusCompleted
	out := "result"
	score := 82.5
	in, outTok := int64(10), int64(20)
	require.NoError(t, s.Executions.Update(ctx, id, models.ExecutionUpdate{
		Status:       &status,
		Output:       &out,
		QualityScore: &score,
		Dimensions:   models.ScoreMap{"relevance": 90},
		InputTokens:  &in,
		OutputTokens: &outTok,
	}))

	rec, err := s.Executions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, models.ReviewPending, rec.ReviewStatus)
	assert.Equal(t, int64(30), rec.TotalTokens)
	assert.InDelta(t, 90, rec.Dimensions["relevance"], 1e-9)
	require.Len(t, rec.Events, 2)
	assert.Equal(t, "invoke", rec.Events[0].Name)

	err = s.Executions.Update(ctx, id, models.ExecutionUpdate{Output: &out})
	assert.Error(t, err, "terminal records are immutable")

	_, err = s.Executions.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		q := float64(50 + i*10)
		st := models.ExecutionStatusCompleted
		if i%3 == 0 {
			st = models.ExecutionStatusFailed
		}
		dept := "eng"
		if i >= 4 {
			dept = "legal"
		}
		_, err := s.Executions.Create(ctx, &models.AuditExecution{
			AgentID:      fmt.Sprintf("a%d", i%2),
			DepartmentID: dept,
			Status:       st,
			QualityScore: &q,
			StartedAt:    &started,
		})
		require.NoError(t, err)
	}

	res, err := s.Executions.Query(ctx, analytics.Filters{DepartmentIDs: []string{"eng"}}, analytics.QueryOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Executions, 3)
	assert.Equal(t, int64(4), res.Pagination.Total)
	assert.True(t, res.Pagination.HasMore)
	assert.Equal(t, int64(2), res.Summary.Completed)
	assert.Equal(t, int64(2), res.Summary.Failed)

	from := base.Add(2 * time.Hour)
	res, err = s.Executions.Query(ctx, analytics.Filters{
		From:       &from,
		MinQuality: models.Float(70),
		Statuses:   []models.ExecutionStatus{models.ExecutionStatusCompleted},
	}, analytics.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Executions, 3)
	assert.False(t, res.Pagination.HasMore)
	for _, e := range res.Executions {
		assert.GreaterOrEqual(t, *e.QualityScore, 70.0)
	}
}

func TestRunTrackingPublishesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events, cancel := s.Runs.Subscribe("r1")
	defer cancel()

	require.NoError(t, s.Runs.CreateRun(ctx, &models.OrchestrationRun{ID: "r1", Prompt: "p", Status: models.RunQueued}))
	require.NoError(t, s.Runs.UpsertDepartment(ctx, models.RunDepartment{RunID: "r1", DepartmentID: "eng", Status: models.DepartmentInProgress, Relevance: 0.8}))
	require.NoError(t, s.Runs.UpsertDepartment(ctx, models.RunDepartment{
		RunID: "r1", DepartmentID: "eng", Status: models.DepartmentComplete, QualityScore: 88, Relevance: 0.8,
		Issues: models.StringSlice{"1 of 2 specialists rejected"},
	}))
	done := models.RunCompleted
	require.NoError(t, s.Runs.UpdateRun(ctx, "r1", models.RunUpdate{Status: &done}))

	var got []models.RunEvent
	for i := 0; i < 4; i++ {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("expected event %d", i)
		}
	}
	assert.Equal(t, models.RunQueued, got[0].Run.Status)
	assert.Equal(t, models.DepartmentInProgress, got[1].Department.Status)
	assert.Equal(t, models.DepartmentComplete, got[2].Department.Status)
	assert.Equal(t, models.RunCompleted, got[3].Run.Status)

	run, err := s.Runs.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, run.Departments, 1)
	assert.InDelta(t, 88, run.Departments[0].QualityScore, 1e-9)
	assert.Equal(t, models.StringSlice{"1 of 2 specialists rejected"}, run.Departments[0].Issues)

	assert.ErrorIs(t, s.Runs.UpdateRun(ctx, "ghost", models.RunUpdate{Status: &done}), ErrNotFound)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := newTestStore(t)
	events, cancel := s.Runs.Subscribe("r1")
	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}
