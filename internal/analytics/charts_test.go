package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/models"
)

func TestTruncateBuckets(t *testing.T) {
	ts := time.Date(2025, 3, 13, 17, 45, 12, 0, time.UTC) // Thursday

	assert.Equal(t, time.Date(2025, 3, 13, 17, 0, 0, 0, time.UTC), truncate(ts, BucketHour))
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), truncate(ts, BucketDay))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), truncate(ts, BucketWeek))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), truncate(ts, BucketMonth))

	sunday := time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), truncate(sunday, BucketWeek))
}

func TestTimeSeriesByHour(t *testing.T) {
	records := []models.AuditExecution{
		rec("1", tokens(10, 5)),
		rec("2", at(base.Add(10*time.Minute)), failed("boom", "X")),
		rec("3", at(base.Add(2*time.Hour)), tokens(1, 1)),
	}
	c := Compute(records, BucketHour, nil).Charts

	require.Len(t, c.Executions, 2)
	assert.Equal(t, "2025-03-10T09:00", c.Executions[0].Label)
	assert.Equal(t, 2.0, c.Executions[0].Value)
	assert.Equal(t, 15.0, c.Tokens[0].Value)
	assert.InDelta(t, 0.5, c.ErrorRate[0].Value, 1e-9)
	assert.Equal(t, "2025-03-10T11:00", c.Executions[1].Label)
	assert.Zero(t, c.ErrorRate[1].Value)
}

func TestHistograms(t *testing.T) {
	records := []models.AuditExecution{
		rec("1", took(500*time.Millisecond), score(95)),
		rec("2", took(3*time.Second), score(40)),
		rec("3", took(45*time.Second)),
		rec("4", took(2*time.Minute)),
	}
	c := Compute(records, BucketDay, nil).Charts

	counts := map[string]int{}
	for _, b := range c.DurationHistogram {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, map[string]int{"<1s": 1, "1-5s": 1, "5-10s": 0, "10-30s": 0, "30-60s": 1, ">=60s": 1}, counts)

	assert.Equal(t, HistogramBin{Label: QualityFailing, Count: 1}, c.QualityHistogram[0])
	assert.Equal(t, HistogramBin{Label: QualityExcellent, Count: 1}, c.QualityHistogram[4])
}

func TestRankedComparisons(t *testing.T) {
	records := []models.AuditExecution{
		rec("1", dept("eng"), agent("a"), score(70)),
		rec("2", dept("legal"), agent("b"), score(90)),
		rec("3", dept("legal"), agent("c"), score(90), failed("x", "")),
		rec("4", dept("design"), agent("c"), score(90)),
	}
	c := Compute(records, BucketDay, nil).Charts

	require.Len(t, c.DepartmentComparison, 3)
	assert.Equal(t, "design", c.DepartmentComparison[0].DepartmentID)
	assert.Equal(t, "legal", c.DepartmentComparison[1].DepartmentID)
	assert.InDelta(t, 0.5, c.DepartmentComparison[1].SuccessRate, 1e-9)
	assert.Equal(t, "eng", c.DepartmentComparison[2].DepartmentID)

	require.Len(t, c.AgentPerformance, 3)
	assert.Equal(t, "b", c.AgentPerformance[0].AgentID)
	assert.Equal(t, "c", c.AgentPerformance[1].AgentID)
	assert.Equal(t, 2, c.AgentPerformance[1].Executions)
	assert.Equal(t, "a", c.AgentPerformance[2].AgentID)
}
