package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/agents"
	"brigade/internal/models"
)

var _ agents.RunObserver = (*Monitor)(nil)

func TestMonitorTracksActiveRuns(t *testing.T) {
	m := NewMonitor()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	m.RunStatus("r1", models.RunQueued)
	m.RunStatus("r2", models.RunQueued)
	m.RunStatus("r1", models.RunInProgress)
	m.DepartmentStatus("r1", models.RunDepartment{DepartmentID: "eng", Status: models.DepartmentInProgress})
	m.DepartmentStatus("unknown", models.RunDepartment{DepartmentID: "eng"})

	runs := m.ActiveRuns()
	require.Len(t, runs, 2)
	assert.Equal(t, "r1", runs[0].RunID)
	assert.Equal(t, models.RunInProgress, runs[0].Status)
	assert.Equal(t, models.DepartmentInProgress, runs[0].Departments["eng"].Status)

	runs[0].Departments["eng"] = models.RunDepartment{Status: "mutated"}
	assert.Equal(t, models.DepartmentInProgress, m.ActiveRuns()[0].Departments["eng"].Status)

	m.RunStatus("r1", models.RunCompleted)
	m.RunStatus("r2", models.RunFailed)

	assert.Empty(t, m.ActiveRuns())
	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestMonitorConcurrentUpdates(t *testing.T) {
	m := NewMonitor()
	m.RunStatus("r", models.RunInProgress)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.DepartmentStatus("r", models.RunDepartment{DepartmentID: string(rune('a' + i%5)), Status: models.DepartmentComplete})
			_ = m.ActiveRuns()
		}(i)
	}
	wg.Wait()

	require.Len(t, m.ActiveRuns(), 1)
	assert.Len(t, m.ActiveRuns()[0].Departments, 5)
}
