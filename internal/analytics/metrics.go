package analytics

import (
	"sort"
	"time"

	"brigade/internal/models"
)

// Token pricing used when a record carries tokens but no cost, in USD per token.
const (
	InputTokenPrice  = 3.0 / 1_000_000
	OutputTokenPrice = 15.0 / 1_000_000
)

// Quality bucket names. The buckets partition [0, 100].
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
	QualityFailing   = "failing"
)

// QualityBucket returns the distribution bucket for a score.
func QualityBucket(score float64) string {
	switch {
	case score >= 90:
		return QualityExcellent
	case score >= 80:
		return QualityGood
	case score >= 70:
		return QualityFair
	case score >= 60:
		return QualityPoor
	}
	return QualityFailing
}

// Metrics are the aggregate numbers of one analysis.
type Metrics struct {
	TotalExecutions int                            `json:"total_executions"`
	Skipped         int                            `json:"skipped"`
	ByStatus        map[models.ExecutionStatus]int `json:"by_status"`
	ByDepartment    map[string]int                 `json:"by_department"`
	ByAgent         map[string]int                 `json:"by_agent"`
	SuccessRate     float64                        `json:"success_rate"`
	Quality         QualityMetrics                 `json:"quality"`
	Time            TimeMetrics                    `json:"time"`
	Tokens          TokenMetrics                   `json:"tokens"`
	Errors          ErrorMetrics                   `json:"errors"`
	Reviews         ReviewMetrics                  `json:"reviews"`
}

// Distribution counts scored executions per quality bucket.
type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
	Failing   int `json:"failing"`
}

// Total is the number of scored executions counted.
func (d Distribution) Total() int {
	return d.Excellent + d.Good + d.Fair + d.Poor + d.Failing
}

func (d *Distribution) add(score float64) {
	switch QualityBucket(score) {
	case QualityExcellent:
		d.Excellent++
	case QualityGood:
		d.Good++
	case QualityFair:
		d.Fair++
	case QualityPoor:
		d.Poor++
	default:
		d.Failing++
	}
}

// TrendPoint is the average quality of one day.
type TrendPoint struct {
	Date    string  `json:"date"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type QualityMetrics struct {
	Scored       int                `json:"scored"`
	Average      float64            `json:"average"`
	Median       float64            `json:"median"`
	Distribution Distribution       `json:"distribution"`
	ByDepartment map[string]float64 `json:"by_department"`
	ByAgent      map[string]float64 `json:"by_agent"`
	Trend        []TrendPoint       `json:"trend"`
}

type TimeMetrics struct {
	Measured  int     `json:"measured"`
	AverageMs float64 `json:"average_ms"`
	MedianMs  float64 `json:"median_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

type TokenMetrics struct {
	Input               int64              `json:"input"`
	Output              int64              `json:"output"`
	Total               int64              `json:"total"`
	AveragePerExecution float64            `json:"average_per_execution"`
	ByDepartment        map[string]int64   `json:"by_department"`
	ByAgent             map[string]int64   `json:"by_agent"`
	EstimatedCost       float64            `json:"estimated_cost"`
	CostByDepartment    map[string]float64 `json:"cost_by_department"`
	CostByAgent         map[string]float64 `json:"cost_by_agent"`
}

// ErrorPattern groups errors whose messages share a cause.
type ErrorPattern struct {
	Name           string   `json:"name"`
	Count          int      `json:"count"`
	Percentage     float64  `json:"percentage"`
	AffectedAgents []string `json:"affected_agents"`
}

type ErrorMetrics struct {
	Errored  int            `json:"errored"`
	Rate     float64        `json:"rate"`
	ByCode   map[string]int `json:"by_code"`
	ByAgent  map[string]int `json:"by_agent"`
	Patterns []ErrorPattern `json:"patterns"`
}

type ReviewMetrics struct {
	Breakdown        map[models.ReviewStatus]int `json:"breakdown"`
	ApprovalRate     float64                     `json:"approval_rate"`
	AverageLatencyMs float64                     `json:"average_latency_ms"`
}

type group struct {
	executions int
	completed  int
	errored    int
	tokens     int64
	quality    []float64
	durations  []float64
}

type seriesBucket struct {
	start      time.Time
	executions int
	errored    int
	tokens     int64
}

// accumulator collects everything in one pass over the records.
type accumulator struct {
	bucket  TimeBucket
	skipped int
	total   int

	byStatus map[models.ExecutionStatus]int
	depts    map[string]*group
	agents   map[string]*group

	scores    []float64
	dist      Distribution
	dailyQ    map[string][]float64
	durations []float64

	input, output int64
	cost          float64
	costByDept    map[string]float64
	costByAgent   map[string]float64

	errored      int
	errByCode    map[string]int
	errByAgent   map[string]int
	patterns     map[string]int
	patternAgent map[string]map[string]bool

	reviews   map[models.ReviewStatus]int
	latencies []float64

	series map[time.Time]*seriesBucket
}

func newAccumulator(bucket TimeBucket) *accumulator {
	return &accumulator{
		bucket:       bucket,
		byStatus:     map[models.ExecutionStatus]int{},
		depts:        map[string]*group{},
		agents:       map[string]*group{},
		dailyQ:       map[string][]float64{},
		costByDept:   map[string]float64{},
		costByAgent:  map[string]float64{},
		errByCode:    map[string]int{},
		errByAgent:   map[string]int{},
		patterns:     map[string]int{},
		patternAgent: map[string]map[string]bool{},
		reviews:      map[models.ReviewStatus]int{},
		series:       map[time.Time]*seriesBucket{},
	}
}

func groupFor(m map[string]*group, key string) *group {
	g, ok := m[key]
	if !ok {
		g = &group{}
		m[key] = g
	}
	return g
}

func (a *accumulator) add(rec *models.AuditExecution) {
	a.total++
	a.byStatus[rec.Status]++

	dept := groupFor(a.depts, deptKey(rec))
	agent := groupFor(a.agents, rec.AgentID)
	for _, g := range []*group{dept, agent} {
		g.executions++
		if rec.Status == models.ExecutionStatusCompleted {
			g.completed++
		}
	}

	if rec.QualityScore != nil {
		q := *rec.QualityScore
		a.scores = append(a.scores, q)
		a.dist.add(q)
		dept.quality = append(dept.quality, q)
		agent.quality = append(agent.quality, q)
		day := recordTime(rec).UTC().Format("2006-01-02")
		a.dailyQ[day] = append(a.dailyQ[day], q)
	}

	if d, ok := rec.Duration(); ok {
		ms := float64(d.Milliseconds())
		a.durations = append(a.durations, ms)
		dept.durations = append(dept.durations, ms)
		agent.durations = append(agent.durations, ms)
	}

	tokens := recordTokens(rec)
	cost := recordCost(rec)
	a.input += rec.InputTokens
	a.output += rec.OutputTokens
	a.cost += cost
	a.costByDept[deptKey(rec)] += cost
	a.costByAgent[rec.AgentID] += cost
	dept.tokens += tokens
	agent.tokens += tokens

	errored := isErrored(rec)
	if errored {
		a.errored++
		dept.errored++
		agent.errored++
		code := rec.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		a.errByCode[code]++
		a.errByAgent[rec.AgentID]++

		p := ClassifyError(rec.ErrorMessage + " " + rec.ErrorCode + " " + string(rec.Status))
		a.patterns[p]++
		if a.patternAgent[p] == nil {
			a.patternAgent[p] = map[string]bool{}
		}
		a.patternAgent[p][rec.AgentID] = true
	}

	review := rec.ReviewStatus
	if review == "" {
		review = models.ReviewPending
	}
	a.reviews[review]++
	if rec.ReviewedAt != nil && rec.CompletedAt != nil {
		if lat := rec.ReviewedAt.Sub(*rec.CompletedAt); lat >= 0 {
			a.latencies = append(a.latencies, float64(lat.Milliseconds()))
		}
	}

	start := truncate(recordTime(rec), a.bucket)
	sb, ok := a.series[start]
	if !ok {
		sb = &seriesBucket{start: start}
		a.series[start] = sb
	}
	sb.executions++
	sb.tokens += tokens
	if errored {
		sb.errored++
	}
}

func (a *accumulator) metrics() Metrics {
	m := Metrics{
		TotalExecutions: a.total,
		Skipped:         a.skipped,
		ByStatus:        a.byStatus,
		ByDepartment:    map[string]int{},
		ByAgent:         map[string]int{},
		SuccessRate:     ratio(a.byStatus[models.ExecutionStatusCompleted], a.total),
	}

	m.Quality = QualityMetrics{
		Scored:       len(a.scores),
		Average:      mean(a.scores),
		Median:       median(a.scores),
		Distribution: a.dist,
		ByDepartment: map[string]float64{},
		ByAgent:      map[string]float64{},
		Trend:        []TrendPoint{},
	}
	m.Tokens = TokenMetrics{
		Input:            a.input,
		Output:           a.output,
		Total:            a.input + a.output,
		ByDepartment:     map[string]int64{},
		ByAgent:          map[string]int64{},
		EstimatedCost:    a.cost,
		CostByDepartment: a.costByDept,
		CostByAgent:      a.costByAgent,
	}
	if a.total > 0 {
		m.Tokens.AveragePerExecution = float64(m.Tokens.Total) / float64(a.total)
	}

	for id, g := range a.depts {
		m.ByDepartment[id] = g.executions
		m.Tokens.ByDepartment[id] = g.tokens
		if len(g.quality) > 0 {
			m.Quality.ByDepartment[id] = mean(g.quality)
		}
	}
	for id, g := range a.agents {
		m.ByAgent[id] = g.executions
		m.Tokens.ByAgent[id] = g.tokens
		if len(g.quality) > 0 {
			m.Quality.ByAgent[id] = mean(g.quality)
		}
	}

	days := make([]string, 0, len(a.dailyQ))
	for d := range a.dailyQ {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		m.Quality.Trend = append(m.Quality.Trend, TrendPoint{Date: d, Average: mean(a.dailyQ[d]), Count: len(a.dailyQ[d])})
	}

	sorted := append([]float64(nil), a.durations...)
	sort.Float64s(sorted)
	m.Time = TimeMetrics{
		Measured:  len(sorted),
		AverageMs: mean(sorted),
		MedianMs:  median(sorted),
		P95Ms:     percentile(sorted, 0.95),
		P99Ms:     percentile(sorted, 0.99),
	}

	m.Errors = ErrorMetrics{
		Errored:  a.errored,
		Rate:     ratio(a.errored, a.total),
		ByCode:   a.errByCode,
		ByAgent:  a.errByAgent,
		Patterns: a.errorPatterns(),
	}

	approved := a.reviews[models.ReviewApproved]
	decided := approved + a.reviews[models.ReviewRejected] + a.reviews[models.ReviewRevisionNeeded]
	m.Reviews = ReviewMetrics{
		Breakdown:        a.reviews,
		ApprovalRate:     ratio(approved, decided),
		AverageLatencyMs: mean(a.latencies),
	}
	return m
}

func (a *accumulator) errorPatterns() []ErrorPattern {
	out := make([]ErrorPattern, 0, len(a.patterns))
	for name, count := range a.patterns {
		agents := make([]string, 0, len(a.patternAgent[name]))
		for id := range a.patternAgent[name] {
			agents = append(agents, id)
		}
		sort.Strings(agents)
		out = append(out, ErrorPattern{
			Name:           name,
			Count:          count,
			Percentage:     round2(ratio(count, a.errored) * 100),
			AffectedAgents: agents,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func deptKey(rec *models.AuditExecution) string {
	if rec.DepartmentID == "" {
		return "unassigned"
	}
	return rec.DepartmentID
}

func recordTime(rec *models.AuditExecution) time.Time {
	if rec.StartedAt != nil {
		return *rec.StartedAt
	}
	return rec.CreatedAt
}

func recordTokens(rec *models.AuditExecution) int64 {
	if rec.TotalTokens > 0 {
		return rec.TotalTokens
	}
	return rec.InputTokens + rec.OutputTokens
}

func recordCost(rec *models.AuditExecution) float64 {
	if rec.EstimatedCost > 0 {
		return rec.EstimatedCost
	}
	return float64(rec.InputTokens)*InputTokenPrice + float64(rec.OutputTokens)*OutputTokenPrice
}

func isErrored(rec *models.AuditExecution) bool {
	return rec.HasError() ||
		rec.Status == models.ExecutionStatusFailed ||
		rec.Status == models.ExecutionStatusTimeout
}
