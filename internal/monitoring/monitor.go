// Package monitoring keeps an in-memory view of orchestrations in flight.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"brigade/internal/models"
)

// RunSnapshot is the live state of one run.
type RunSnapshot struct {
	RunID       string                          `json:"run_id"`
	Status      models.RunStatus                `json:"status"`
	StartedAt   time.Time                       `json:"started_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
	Departments map[string]models.RunDepartment `json:"departments"`
}

// Stats summarizes what the monitor has seen since start.
type Stats struct {
	Active        int     `json:"active"`
	Completed     int64   `json:"completed"`
	Failed        int64   `json:"failed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Monitor implements agents.RunObserver.
type Monitor struct {
	mu        sync.RWMutex
	runs      map[string]*RunSnapshot
	completed int64
	failed    int64
	startTime time.Time
	now       func() time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		runs:      make(map[string]*RunSnapshot),
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (m *Monitor) snapshot(runID string) *RunSnapshot {
	s, ok := m.runs[runID]
	if !ok {
		now := m.now()
		s = &RunSnapshot{
			RunID:       runID,
			StartedAt:   now,
			UpdatedAt:   now,
			Departments: map[string]models.RunDepartment{},
		}
		m.runs[runID] = s
	}
	return s
}

// RunStatus records a run transition. Finished runs leave the active set.
func (m *Monitor) RunStatus(runID string, status models.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case models.RunCompleted:
		m.completed++
		delete(m.runs, runID)
		return
	case models.RunFailed:
		m.failed++
		delete(m.runs, runID)
		return
	}
	s := m.snapshot(runID)
	s.Status = status
	s.UpdatedAt = m.now()
}

// DepartmentStatus records the latest state of one department of a run.
func (m *Monitor) DepartmentStatus(runID string, dept models.RunDepartment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.runs[runID]
	if !ok {
		return
	}
	s.Departments[dept.DepartmentID] = dept
	s.UpdatedAt = m.now()
}

// ActiveRuns returns copies of every run in flight, oldest first.
func (m *Monitor) ActiveRuns() []RunSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunSnapshot, 0, len(m.runs))
	for _, s := range m.runs {
		cp := *s
		cp.Departments = make(map[string]models.RunDepartment, len(s.Departments))
		for k, v := range s.Departments {
			cp.Departments[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Active:        len(m.runs),
		Completed:     m.completed,
		Failed:        m.failed,
		UptimeSeconds: time.Since(m.startTime).Seconds(),
	}
}
