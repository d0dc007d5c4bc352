package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/models"
)

func engineering() models.Department {
	return models.Department{ID: "dept-eng", Slug: "engineering", Name: "Engineering", Active: true}
}

func head(deptID string) models.Agent {
	return models.Agent{
		ID:               "head-" + deptID,
		Name:             "Head of " + deptID,
		Level:            models.LevelDepartmentHead,
		DepartmentID:     deptID,
		IsDepartmentHead: true,
		Active:           true,
	}
}

// echoHead answers department heads with their prompt so tests can inspect
// the synthesis input.
func echoHead(next func(context.Context, string, string, TaskContext) (*Invocation, error)) func(context.Context, string, string, TaskContext) (*Invocation, error) {
	return func(ctx context.Context, agentID, prompt string, tc TaskContext) (*Invocation, error) {
		if strings.HasPrefix(agentID, "head-") {
			return &Invocation{Output: prompt}, nil
		}
		return next(ctx, agentID, prompt, tc)
	}
}

func newCoordinator(agents *fakeAgents, depts *fakeDepartments, inv Invoker, store *fakeStore, opts ...CoordinatorOption) *Coordinator {
	svc := Services{
		Agents:      agents,
		Departments: depts,
		Executions:  store,
		Invoker:     inv,
		Logger:      testLogger(),
	}
	return NewCoordinator(svc, NewSpecialistLoop(svc), opts...)
}

func TestReviewStatusFor(t *testing.T) {
	scores := []float64{90, 55, 65}
	var got []models.ReviewStatus
	for _, s := range scores {
		got = append(got, ReviewStatusFor(s, 60))
	}
	assert.Equal(t, []models.ReviewStatus{
		models.ReviewApproved,
		models.ReviewRejected,
		models.ReviewRevisionNeeded,
	}, got)

	assert.Equal(t, models.ReviewRevisionNeeded, ReviewStatusFor(60, 60))
	assert.Equal(t, models.ReviewApproved, ReviewStatusFor(70, 60))
	assert.Equal(t, models.ReviewApproved, ReviewStatusFor(1, 0))
}

func TestDepartmentQuality(t *testing.T) {
	// 4 of 5 approved (80%), mean score 75: round(48 + 30) = 78
	results := []SpecialistResult{
		{ReviewStatus: models.ReviewApproved, QualityScore: 80},
		{ReviewStatus: models.ReviewApproved, QualityScore: 80},
		{ReviewStatus: models.ReviewApproved, QualityScore: 80},
		{ReviewStatus: models.ReviewApproved, QualityScore: 80},
		{ReviewStatus: models.ReviewRejected, QualityScore: 55},
	}
	assert.Equal(t, 78.0, DepartmentQuality(results))
	assert.Equal(t, 85.0, DepartmentQuality(nil))
}

func TestEffectiveThreshold(t *testing.T) {
	dept := &models.Department{MinQualityThreshold: models.Float(70)}
	agent := &models.Agent{}

	assert.Equal(t, 70.0, EffectiveThreshold(agent, dept, 60))
	assert.Equal(t, 60.0, EffectiveThreshold(agent, &models.Department{}, 60))

	agent.PassingThreshold = models.Float(0)
	assert.Equal(t, 0.0, EffectiveThreshold(agent, dept, 60), "explicit zero wins")

	agent.PassingThreshold = models.Float(80)
	assert.Equal(t, 80.0, EffectiveThreshold(agent, dept, 60))
}

func TestProcessSimplePromptSkipsSpecialists(t *testing.T) {
	agents := newFakeAgents(head("dept-eng"), specialist("s1"))
	inv := &scriptedInvoker{fn: echoHead(sequence(90))}
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, newFakeStore())

	res, err := c.Process(context.Background(), "engineering", "Fix the typo", ProcessOptions{})
	require.NoError(t, err)

	assert.Equal(t, ComplexitySimple, res.Metadata.Complexity)
	assert.Empty(t, res.SpecialistResults)
	assert.Equal(t, 85.0, res.QualityScore)
	assert.Equal(t, "Fix the typo", res.Output, "head receives the original prompt")
	assert.Empty(t, inv.callsFor("s1"))
}

func TestProcessDisableSpecialists(t *testing.T) {
	agents := newFakeAgents(head("dept-eng"), specialist("s1"))
	inv := &scriptedInvoker{fn: echoHead(sequence(90))}
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, newFakeStore())

	res, err := c.Process(context.Background(), "dept-eng",
		"Write a detailed design and also implement it", ProcessOptions{DisableSpecialists: true})
	require.NoError(t, err)
	assert.Empty(t, res.SpecialistResults)
	assert.Equal(t, 85.0, res.QualityScore)
}

func TestProcessSurvivesSpecialistFailures(t *testing.T) {
	agents := newFakeAgents(head("dept-eng"), specialist("s1"), specialist("s2"), specialist("s3"))
	inv := &scriptedInvoker{fn: echoHead(func(_ context.Context, agentID, _ string, _ TaskContext) (*Invocation, error) {
		if agentID == "s3" {
			return scored("S3 OUTPUT", 92), nil
		}
		return nil, fmt.Errorf("%s crashed", agentID)
	})}
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, newFakeStore(),
		WithDefaults(60, 1))

	res, err := c.Process(context.Background(), "engineering",
		"Write a detailed story and also add dialogue between the two leads", ProcessOptions{})
	require.NoError(t, err)

	require.Len(t, res.SpecialistResults, 3)
	byAgent := map[string]SpecialistResult{}
	for _, r := range res.SpecialistResults {
		byAgent[r.AgentID] = r
	}
	assert.Equal(t, models.ReviewRejected, byAgent["s1"].ReviewStatus)
	assert.Equal(t, models.ReviewRejected, byAgent["s2"].ReviewStatus)
	assert.Equal(t, models.ReviewApproved, byAgent["s3"].ReviewStatus)
	assert.Len(t, inv.callsFor("s1"), 2, "one retry each")

	assert.Contains(t, res.Output, "S3 OUTPUT", "approved output reaches synthesis")
	assert.NotContains(t, res.Output, "crashed")
	assert.Equal(t, 1, res.Metadata.Approved)
	assert.Equal(t, 2, res.Metadata.Rejected)
	// approval 33.3%, mean (0+0+92)/3: round(20 + 12.27) = 32
	assert.Equal(t, 32.0, res.QualityScore)
}

func TestProcessReviewUsesThresholdBands(t *testing.T) {
	s1, s2, s3 := specialist("s1"), specialist("s2"), specialist("s3")
	s1.SuccessRate, s2.SuccessRate, s3.SuccessRate = 0.9, 0.8, 0.7
	for _, a := range []*models.Agent{&s1, &s2, &s3} {
		a.PassingThreshold = models.Float(0)
	}
	scores := map[string]float64{"s1": 90, "s2": 55, "s3": 65}
	agents := newFakeAgents(head("dept-eng"), s1, s2, s3)
	inv := &scriptedInvoker{fn: echoHead(func(_ context.Context, agentID, _ string, _ TaskContext) (*Invocation, error) {
		return scored(agentID+" work", scores[agentID]), nil
	})}
	dept := engineering()
	dept.MinQualityThreshold = models.Float(60)
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{dept}}, inv, newFakeStore())

	// agents with threshold 0 are auto-approved
	res, err := c.Process(context.Background(), "engineering", "Write comprehensive tests and also document them", ProcessOptions{})
	require.NoError(t, err)
	for _, r := range res.SpecialistResults {
		assert.Equal(t, models.ReviewApproved, r.ReviewStatus, r.AgentID)
	}

	// with the department threshold, the three bands apply
	for _, id := range []string{"s1", "s2", "s3"} {
		agents.agents[id].PassingThreshold = nil
	}
	res, err = c.Process(context.Background(), "engineering", "Write comprehensive tests and also document them", ProcessOptions{})
	require.NoError(t, err)
	got := map[string]models.ReviewStatus{}
	for _, r := range res.SpecialistResults {
		got[r.AgentID] = r.ReviewStatus
	}
	assert.Equal(t, map[string]models.ReviewStatus{
		"s1": models.ReviewApproved,
		"s2": models.ReviewRejected,
		"s3": models.ReviewRevisionNeeded,
	}, got)
	assert.Contains(t, res.Output, "s1 work")
	assert.NotContains(t, res.Output, "s3 work", "only approved output is synthesized")
}

func TestProcessStoresRevisionNeededReview(t *testing.T) {
	agents := newFakeAgents(head("dept-eng"), specialist("s1"))
	inv := &scriptedInvoker{fn: echoHead(sequence(65))}
	store := newFakeStore()
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, store,
		WithDefaults(60, 3))

	res, err := c.Process(context.Background(), "engineering", "Write comprehensive tests and also document them", ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, res.SpecialistResults, 1)

	r := res.SpecialistResults[0]
	assert.Equal(t, models.ReviewRevisionNeeded, r.ReviewStatus)
	assert.Equal(t, "Score 65 is within 10 points of threshold 60; revision needed", r.ReviewNotes)
	assert.Len(t, inv.callsFor("s1"), 1, "a passing score is not retried")

	rec := store.get(r.ExecutionID)
	assert.Equal(t, models.ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, models.ReviewRevisionNeeded, rec.ReviewStatus, "stored review matches the department result")

	perf := agents.get("s1")
	assert.Equal(t, int64(1), perf.TotalExecutions)
	assert.Zero(t, perf.SuccessfulExecutions)
}

func TestProcessHonorsZeroRetries(t *testing.T) {
	s1 := specialist("s1")
	s1.MaxRetries = models.Int(0)
	agents := newFakeAgents(head("dept-eng"), s1, specialist("s2"))
	inv := &scriptedInvoker{fn: echoHead(sequence(10))}
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, newFakeStore(),
		WithDefaults(60, 2))

	res, err := c.Process(context.Background(), "engineering", "Write comprehensive tests and also document them", ProcessOptions{})
	require.NoError(t, err)

	attempts := map[string]int{}
	for _, r := range res.SpecialistResults {
		attempts[r.AgentID] = r.Attempts
	}
	assert.Equal(t, map[string]int{"s1": 1, "s2": 3}, attempts)
	assert.Len(t, inv.callsFor("s1"), 1)
}

func TestProcessSelectsBySkillAndSuccessRate(t *testing.T) {
	a := specialist("a")
	a.Capabilities = models.StringSlice{"dialogue"}
	a.SuccessRate = 0.5
	b := specialist("b")
	b.Capabilities = models.StringSlice{"dialogue"}
	b.SuccessRate = 0.9
	c1 := specialist("c")
	c1.Specialization = "marketing"
	c1.SuccessRate = 1.0

	agents := newFakeAgents(head("dept-eng"), a, b, c1)
	coord := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}},
		&scriptedInvoker{fn: echoHead(sequence(90))}, newFakeStore())

	an := coord.analyzer.Analyze("Write the dialogue for the opening scene and the closing scene please")
	require.Equal(t, ComplexityModerate, an.Complexity)

	dept := engineering()
	picked, err := coord.selectSpecialists(context.Background(), &dept, an)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "b", picked[0].ID)
	assert.Equal(t, "a", picked[1].ID)
}

func TestProcessMissingHead(t *testing.T) {
	agents := newFakeAgents(specialist("s1"))
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}},
		&scriptedInvoker{fn: sequence(90)}, newFakeStore())

	_, err := c.Process(context.Background(), "engineering", "anything", ProcessOptions{})
	var nf *DependencyNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "department head", nf.Kind)
}

func TestProcessUnknownDepartment(t *testing.T) {
	c := newCoordinator(newFakeAgents(), &fakeDepartments{}, &scriptedInvoker{fn: sequence(90)}, newFakeStore())

	_, err := c.Process(context.Background(), "legal", "anything", ProcessOptions{})
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = c.Process(context.Background(), "legal", "  ", ProcessOptions{})
	assert.True(t, IsValidation(err))
}

func TestProcessHeadFailure(t *testing.T) {
	agents := newFakeAgents(head("dept-eng"))
	inv := &scriptedInvoker{fn: func(context.Context, string, string, TaskContext) (*Invocation, error) {
		return nil, errors.New("model offline")
	}}
	store := newFakeStore()
	c := newCoordinator(agents, &fakeDepartments{depts: []models.Department{engineering()}}, inv, store)

	_, err := c.Process(context.Background(), "engineering", "hello", ProcessOptions{})
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "head-dept-eng", execErr.AgentID)

	recs := store.all()
	require.Len(t, recs, 1)
	assert.Equal(t, models.ExecutionStatusFailed, recs[0].Status)
}
