package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"brigade/internal/agents"
	"brigade/internal/analytics"
	"brigade/internal/models"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func recommendationColor(r agents.Recommendation) func(a ...interface{}) string {
	switch r {
	case agents.RecommendIngest:
		return green
	case agents.RecommendModify:
		return yellow
	}
	return red
}

func scoreColor(score float64) func(a ...interface{}) string {
	switch {
	case score >= 75:
		return green
	case score >= 50:
		return yellow
	}
	return red
}

func printOrchestration(w io.Writer, res *agents.OrchestratorResult) {
	rc := recommendationColor(res.Recommendation)
	fmt.Fprintf(w, "%s %s\n", bold("Run"), res.RunID)
	fmt.Fprintf(w, "  recommendation  %s\n", rc(strings.ToUpper(string(res.Recommendation))))
	fmt.Fprintf(w, "  overall quality %s\n", scoreColor(res.OverallQuality*100)(fmt.Sprintf("%.2f", res.OverallQuality)))
	fmt.Fprintf(w, "  completeness    %.2f\n", res.Completeness)
	fmt.Fprintf(w, "  consistency     %.2f %s\n", res.Consistency, faint("("+res.ConsistencyMethod+")"))
	fmt.Fprintf(w, "  elapsed         %s\n\n", res.Elapsed.Round(time.Millisecond))

	for _, d := range res.Departments {
		status := green(d.Status)
		if d.Status != models.DepartmentComplete {
			status = red(d.Status)
		}
		fmt.Fprintf(w, "%s %s  quality %s  relevance %.2f\n",
			cyan("■"), bold(d.DepartmentID), scoreColor(d.QualityScore)(fmt.Sprintf("%.1f", d.QualityScore)), d.Relevance)
		fmt.Fprintf(w, "  status %s\n", status)
		for _, issue := range d.Issues {
			fmt.Fprintf(w, "  %s %s\n", yellow("!"), issue)
		}
		if d.Output != "" {
			fmt.Fprintf(w, "\n%s\n", indent(d.Output, "  "))
		}
		fmt.Fprintln(w)
	}
}

func printReport(w io.Writer, r *analytics.Report) {
	m := r.Metrics
	fmt.Fprintf(w, "%s\n", bold("Executions"))
	fmt.Fprintf(w, "  total           %d", m.TotalExecutions)
	if r.Truncated {
		fmt.Fprintf(w, " %s", yellow("(truncated)"))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  success rate    %s\n", rateColor(m.SuccessRate)(fmt.Sprintf("%.1f%%", m.SuccessRate*100)))
	fmt.Fprintf(w, "  error rate      %.1f%%\n", m.Errors.Rate*100)
	if m.Quality.Scored > 0 {
		fmt.Fprintf(w, "  avg quality     %s\n", scoreColor(m.Quality.Average)(fmt.Sprintf("%.1f", m.Quality.Average)))
	}
	if m.Time.Measured > 0 {
		fmt.Fprintf(w, "  avg duration    %s (p95 %s)\n",
			time.Duration(m.Time.AverageMs*float64(time.Millisecond)).Round(time.Millisecond),
			time.Duration(m.Time.P95Ms*float64(time.Millisecond)).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  tokens          %d (est. $%.2f)\n", m.Tokens.Total, m.Tokens.EstimatedCost)

	if len(m.ByDepartment) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("By department"))
		for _, id := range sortedKeys(m.ByDepartment) {
			fmt.Fprintf(w, "  %-20s %d\n", id, m.ByDepartment[id])
		}
	}

	if len(r.Insights) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Insights"))
		for _, in := range r.Insights {
			fmt.Fprintf(w, "  %s %s %s\n", insightMark(in.Type), in.Title, faint("["+string(in.Impact)+"]"))
			fmt.Fprintf(w, "    %s\n", in.Description)
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Recommendations"))
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func insightMark(t analytics.InsightType) string {
	switch t {
	case analytics.InsightSuccess:
		return green("✓")
	case analytics.InsightWarning:
		return yellow("!")
	case analytics.InsightError:
		return red("✗")
	}
	return cyan("i")
}

func rateColor(rate float64) func(a ...interface{}) string {
	switch {
	case rate >= analytics.HighSuccessRate:
		return green
	case rate >= analytics.LowSuccessRate:
		return yellow
	}
	return red
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
