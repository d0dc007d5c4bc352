package analytics

import (
	"fmt"
	"sort"
)

type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightWarning InsightType = "warning"
	InsightError   InsightType = "error"
	InsightInfo    InsightType = "info"
)

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Insight categories.
const (
	CategoryReliability = "reliability"
	CategoryQuality     = "quality"
	CategoryPerformance = "performance"
	CategoryCost        = "cost"
)

// Rule thresholds.
const (
	LowSuccessRate  = 0.80
	HighSuccessRate = 0.95
	LowQuality      = 70.0
	HighQuality     = 85.0
	SlowExecutionMs = 30_000.0
	CostAlertUSD    = 100.0
	HighErrorRate   = 0.10
)

// Insight is the result of one rule that fired.
type Insight struct {
	Type           InsightType `json:"type"`
	Category       string      `json:"category"`
	Impact         Impact      `json:"impact"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Metric         float64     `json:"metric"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// EvaluateInsights applies every rule to m. Rules are independent and more
// than one may fire. Nothing fires for an empty window, and quality or time
// rules need at least one scored or measured record.
func EvaluateInsights(m Metrics) []Insight {
	out := []Insight{}
	if m.TotalExecutions == 0 {
		return out
	}

	pct := m.SuccessRate * 100
	if m.SuccessRate < LowSuccessRate {
		out = append(out, Insight{
			Type:           InsightWarning,
			Category:       CategoryReliability,
			Impact:         ImpactHigh,
			Title:          "Low success rate",
			Description:    fmt.Sprintf("Only %.1f%% of executions completed successfully", pct),
			Metric:         round2(pct),
			Recommendation: "Investigate failing agents and review error patterns to improve reliability",
		})
	}
	if m.SuccessRate >= HighSuccessRate {
		out = append(out, Insight{
			Type:        InsightSuccess,
			Category:    CategoryReliability,
			Impact:      ImpactLow,
			Title:       "Excellent reliability",
			Description: fmt.Sprintf("%.1f%% of executions completed successfully", pct),
			Metric:      round2(pct),
		})
	}

	if m.Quality.Scored > 0 {
		avg := m.Quality.Average
		if avg < LowQuality {
			out = append(out, Insight{
				Type:           InsightError,
				Category:       CategoryQuality,
				Impact:         ImpactHigh,
				Title:          "Low average quality",
				Description:    fmt.Sprintf("Average quality score is %.1f", avg),
				Metric:         round2(avg),
				Recommendation: "Review agent prompts and passing thresholds for low-scoring departments",
			})
		}
		if avg >= HighQuality {
			out = append(out, Insight{
				Type:        InsightSuccess,
				Category:    CategoryQuality,
				Impact:      ImpactLow,
				Title:       "High quality output",
				Description: fmt.Sprintf("Average quality score is %.1f", avg),
				Metric:      round2(avg),
			})
		}
	}

	if m.Time.Measured > 0 && m.Time.AverageMs > SlowExecutionMs {
		out = append(out, Insight{
			Type:           InsightWarning,
			Category:       CategoryPerformance,
			Impact:         ImpactMedium,
			Title:          "Slow executions",
			Description:    fmt.Sprintf("Average execution time is %.0f ms", m.Time.AverageMs),
			Metric:         round2(m.Time.AverageMs),
			Recommendation: "Reduce prompt size or split work across more specialists",
		})
	}

	if m.Tokens.EstimatedCost > CostAlertUSD {
		out = append(out, Insight{
			Type:           InsightInfo,
			Category:       CategoryCost,
			Impact:         ImpactMedium,
			Title:          "High spend",
			Description:    fmt.Sprintf("Estimated cost is $%.2f", m.Tokens.EstimatedCost),
			Metric:         round2(m.Tokens.EstimatedCost),
			Recommendation: "Lower token budgets or route simple requests to cheaper models",
		})
	}

	if m.Errors.Rate > HighErrorRate {
		rate := m.Errors.Rate * 100
		out = append(out, Insight{
			Type:           InsightError,
			Category:       CategoryReliability,
			Impact:         ImpactHigh,
			Title:          "High error rate",
			Description:    fmt.Sprintf("%.1f%% of executions ended in an error", rate),
			Metric:         round2(rate),
			Recommendation: "Address the most frequent error patterns first",
		})
	}
	return out
}

// Recommendations collects the advice of every high-impact insight and names
// departments and agents whose average quality is below LowQuality.
func Recommendations(m Metrics, insights []Insight) []string {
	out := []string{}
	for _, in := range insights {
		if in.Impact == ImpactHigh && in.Recommendation != "" {
			out = append(out, in.Recommendation)
		}
	}
	out = append(out, lowQuality("Department", m.Quality.ByDepartment)...)
	out = append(out, lowQuality("Agent", m.Quality.ByAgent)...)
	return out
}

func lowQuality(kind string, scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id, q := range scores {
		if q < LowQuality {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%s %s averages quality %.1f; review its prompts and thresholds", kind, id, scores[id]))
	}
	return out
}
