package analytics

import (
	"sort"
	"time"
)

// Charts holds chart-ready series derived from the same pass as Metrics.
type Charts struct {
	Executions           []SeriesPoint    `json:"executions"`
	Tokens               []SeriesPoint    `json:"tokens"`
	ErrorRate            []SeriesPoint    `json:"error_rate"`
	QualityHistogram     []HistogramBin   `json:"quality_histogram"`
	DurationHistogram    []HistogramBin   `json:"duration_histogram"`
	DepartmentComparison []DepartmentStat `json:"department_comparison"`
	AgentPerformance     []AgentStat      `json:"agent_performance"`
}

// SeriesPoint is one time bucket of a series.
type SeriesPoint struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
}

type HistogramBin struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type DepartmentStat struct {
	DepartmentID   string  `json:"department_id"`
	Executions     int     `json:"executions"`
	AverageQuality float64 `json:"average_quality"`
	SuccessRate    float64 `json:"success_rate"`
	AverageMs      float64 `json:"average_ms"`
	Tokens         int64   `json:"tokens"`
}

type AgentStat struct {
	AgentID        string  `json:"agent_id"`
	Executions     int     `json:"executions"`
	AverageQuality float64 `json:"average_quality"`
	SuccessRate    float64 `json:"success_rate"`
	ErrorRate      float64 `json:"error_rate"`
	AverageMs      float64 `json:"average_ms"`
	Tokens         int64   `json:"tokens"`
}

var durationBins = []struct {
	label string
	upper time.Duration
}{
	{"<1s", time.Second},
	{"1-5s", 5 * time.Second},
	{"5-10s", 10 * time.Second},
	{"10-30s", 30 * time.Second},
	{"30-60s", time.Minute},
	{">=60s", 0},
}

// truncate returns the start of the bucket containing t, in UTC. Weeks
// start on Monday.
func truncate(t time.Time, b TimeBucket) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch b {
	case BucketHour:
		return t.Truncate(time.Hour)
	case BucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func bucketLabel(t time.Time, b TimeBucket) string {
	switch b {
	case BucketHour:
		return t.Format("2006-01-02T15:00")
	case BucketMonth:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func (a *accumulator) charts() Charts {
	c := Charts{
		Executions:           []SeriesPoint{},
		Tokens:               []SeriesPoint{},
		ErrorRate:            []SeriesPoint{},
		DepartmentComparison: []DepartmentStat{},
		AgentPerformance:     []AgentStat{},
	}

	starts := make([]time.Time, 0, len(a.series))
	for s := range a.series {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for _, s := range starts {
		sb := a.series[s]
		label := bucketLabel(s, a.bucket)
		c.Executions = append(c.Executions, SeriesPoint{Label: label, Start: s, Value: float64(sb.executions)})
		c.Tokens = append(c.Tokens, SeriesPoint{Label: label, Start: s, Value: float64(sb.tokens)})
		c.ErrorRate = append(c.ErrorRate, SeriesPoint{Label: label, Start: s, Value: ratio(sb.errored, sb.executions)})
	}

	d := a.dist
	c.QualityHistogram = []HistogramBin{
		{QualityFailing, d.Failing},
		{QualityPoor, d.Poor},
		{QualityFair, d.Fair},
		{QualityGood, d.Good},
		{QualityExcellent, d.Excellent},
	}

	c.DurationHistogram = make([]HistogramBin, len(durationBins))
	for i, bin := range durationBins {
		c.DurationHistogram[i].Label = bin.label
	}
	for _, ms := range a.durations {
		c.DurationHistogram[durationBin(ms)].Count++
	}

	for id, g := range a.depts {
		c.DepartmentComparison = append(c.DepartmentComparison, DepartmentStat{
			DepartmentID:   id,
			Executions:     g.executions,
			AverageQuality: mean(g.quality),
			SuccessRate:    ratio(g.completed, g.executions),
			AverageMs:      mean(g.durations),
			Tokens:         g.tokens,
		})
	}
	sort.Slice(c.DepartmentComparison, func(i, j int) bool {
		x, y := c.DepartmentComparison[i], c.DepartmentComparison[j]
		if x.AverageQuality != y.AverageQuality {
			return x.AverageQuality > y.AverageQuality
		}
		return x.DepartmentID < y.DepartmentID
	})

	for id, g := range a.agents {
		c.AgentPerformance = append(c.AgentPerformance, AgentStat{
			AgentID:        id,
			Executions:     g.executions,
			AverageQuality: mean(g.quality),
			SuccessRate:    ratio(g.completed, g.executions),
			ErrorRate:      ratio(g.errored, g.executions),
			AverageMs:      mean(g.durations),
			Tokens:         g.tokens,
		})
	}
	sort.Slice(c.AgentPerformance, func(i, j int) bool {
		x, y := c.AgentPerformance[i], c.AgentPerformance[j]
		if x.AverageQuality != y.AverageQuality {
			return x.AverageQuality > y.AverageQuality
		}
		if x.SuccessRate != y.SuccessRate {
			return x.SuccessRate > y.SuccessRate
		}
		return x.AgentID < y.AgentID
	})
	return c
}

func durationBin(ms float64) int {
	d := time.Duration(ms) * time.Millisecond
	for i, bin := range durationBins {
		if bin.upper == 0 || d < bin.upper {
			return i
		}
	}
	return len(durationBins) - 1
}
