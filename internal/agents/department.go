package agents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"brigade/internal/models"
)

// ProcessOptions tunes a single department run.
type ProcessOptions struct {
	DisableSpecialists bool
	Context            TaskContext
}

// DepartmentMetadata summarizes how a department produced its result.
type DepartmentMetadata struct {
	Complexity      Complexity    `json:"complexity"`
	Skills          []string      `json:"skills,omitempty"`
	AnalysisTime    time.Duration `json:"analysis_time"`
	SpecialistsUsed int           `json:"specialists_used"`
	Approved        int           `json:"approved"`
	RevisionNeeded  int           `json:"revision_needed"`
	Rejected        int           `json:"rejected"`
	TotalElapsed    time.Duration `json:"total_elapsed"`
	HeadExecutionID string        `json:"head_execution_id,omitempty"`
}

// DepartmentResult is the output of one department coordinator run.
type DepartmentResult struct {
	DepartmentID      string             `json:"department_id"`
	DepartmentSlug    string             `json:"department_slug"`
	DepartmentName    string             `json:"department_name"`
	HeadAgentID       string             `json:"head_agent_id"`
	Output            string             `json:"output"`
	QualityScore      float64            `json:"quality_score"`
	SpecialistResults []SpecialistResult `json:"specialist_results"`
	Metadata          DepartmentMetadata `json:"metadata"`
}

// Coordinator runs a department: it analyzes the request, delegates to
// specialists in parallel, reviews their work and has the department head
// synthesize the final output.
type Coordinator struct {
	svc      Services
	loop     *SpecialistLoop
	analyzer ComplexityAnalyzer

	defaultThreshold  float64
	defaultMaxRetries int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithAnalyzer replaces the complexity heuristic.
func WithAnalyzer(a ComplexityAnalyzer) CoordinatorOption {
	return func(c *Coordinator) { c.analyzer = a }
}

// WithDefaults sets the threshold and retry budget used when neither agent
// nor department configures one.
func WithDefaults(threshold float64, maxRetries int) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaultThreshold = threshold
		c.defaultMaxRetries = maxRetries
	}
}

// NewCoordinator creates a department coordinator.
func NewCoordinator(svc Services, loop *SpecialistLoop, opts ...CoordinatorOption) *Coordinator {
	svc = svc.withDefaults()
	if loop == nil {
		loop = NewSpecialistLoop(svc)
	}
	c := &Coordinator{
		svc:               svc,
		loop:              loop,
		analyzer:          NewKeywordAnalyzer(nil),
		defaultThreshold:  DefaultPassingThreshold,
		defaultMaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs the department identified by id or slug against prompt.
func (c *Coordinator) Process(ctx context.Context, departmentRef, prompt string, opts ProcessOptions) (*DepartmentResult, error) {
	start := time.Now()
	if strings.TrimSpace(departmentRef) == "" {
		return nil, &ValidationError{Field: "department", Message: "must not be empty"}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Field: "prompt", Message: "must not be empty"}
	}

	dept, err := c.resolveDepartment(ctx, departmentRef)
	if err != nil {
		return nil, err
	}
	head, err := c.resolveHead(ctx, dept)
	if err != nil {
		return nil, err
	}
	log := c.svc.Logger.With("department", dept.Slug)

	tc := opts.Context
	tc.DepartmentID = dept.ID

	analysisStart := time.Now()
	analysis := c.analyzer.Analyze(prompt)
	meta := DepartmentMetadata{
		Complexity:   analysis.Complexity,
		Skills:       analysis.Skills,
		AnalysisTime: time.Since(analysisStart),
	}

	var results []SpecialistResult
	if analysis.Complexity != ComplexitySimple && !opts.DisableSpecialists {
		specialists, err := c.selectSpecialists(ctx, dept, analysis)
		if err != nil {
			return nil, err
		}
		log.Info("delegating to specialists", "complexity", analysis.Complexity, "specialists", len(specialists))
		results = c.delegate(ctx, dept, specialists, prompt, tc)
		review(results)
	}

	headPrompt := prompt
	if len(results) > 0 {
		headPrompt = buildSynthesisPrompt(prompt, results)
	}
	inv, execID, err := c.svc.invokeRecorded(ctx, *head, headPrompt, tc)
	if err != nil {
		return nil, fmt.Errorf("department %s head: %w", dept.Slug, err)
	}

	meta.SpecialistsUsed = len(results)
	for _, r := range results {
		switch r.ReviewStatus {
		case models.ReviewApproved:
			meta.Approved++
		case models.ReviewRevisionNeeded:
			meta.RevisionNeeded++
		default:
			meta.Rejected++
		}
	}
	meta.HeadExecutionID = execID
	meta.TotalElapsed = time.Since(start)

	q := DepartmentQuality(results)
	c.svc.Recorder.RecordDepartment(dept.Slug, q, meta.TotalElapsed)
	log.Info("department complete", "quality", q, "approved", meta.Approved, "rejected", meta.Rejected)

	return &DepartmentResult{
		DepartmentID:      dept.ID,
		DepartmentSlug:    dept.Slug,
		DepartmentName:    dept.Name,
		HeadAgentID:       head.ID,
		Output:            inv.Output,
		QualityScore:      q,
		SpecialistResults: results,
		Metadata:          meta,
	}, nil
}

func (c *Coordinator) resolveDepartment(ctx context.Context, ref string) (*models.Department, error) {
	dept, err := c.svc.Departments.FindByID(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		dept, err = c.svc.Departments.FindBySlug(ctx, ref)
	}
	if errors.Is(err, models.ErrNotFound) || (err == nil && !dept.Active) {
		return nil, &DependencyNotFoundError{Kind: "department", Key: ref, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("resolving department %s: %w", ref, err)
	}
	return dept, nil
}

func (c *Coordinator) resolveHead(ctx context.Context, dept *models.Department) (*models.Agent, error) {
	heads, err := c.svc.Agents.FindActive(ctx, models.AgentFilter{
		DepartmentID:     dept.ID,
		IsDepartmentHead: models.Bool(true),
	}, "")
	if err != nil {
		return nil, fmt.Errorf("finding head of %s: %w", dept.Slug, err)
	}
	if len(heads) == 0 {
		return nil, &DependencyNotFoundError{Kind: "department head", Key: dept.Slug}
	}
	return &heads[0], nil
}

// selectSpecialists returns active non-head specialists ordered by success
// rate, filtered by skill when that leaves anyone, capped at the estimate.
func (c *Coordinator) selectSpecialists(ctx context.Context, dept *models.Department, an Analysis) ([]models.Agent, error) {
	candidates, err := c.svc.Agents.FindActive(ctx, models.AgentFilter{
		DepartmentID:     dept.ID,
		Level:            models.LevelSpecialist,
		IsDepartmentHead: models.Bool(false),
	}, "success_rate")
	if err != nil {
		return nil, fmt.Errorf("finding specialists for %s: %w", dept.Slug, err)
	}

	if len(an.Skills) > 0 {
		var matched []models.Agent
		for _, a := range candidates {
			if hasAnySkill(a, an.Skills) {
				matched = append(matched, a)
			}
		}
		if len(matched) > 0 {
			candidates = matched
		}
	}

	limit := an.EstimatedSpecialists
	if dept.MaxSpecialists > 0 && dept.MaxSpecialists < limit {
		limit = dept.MaxSpecialists
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func hasAnySkill(a models.Agent, skills []string) bool {
	for _, s := range skills {
		if strings.EqualFold(a.Specialization, s) {
			return true
		}
		for _, capName := range a.Capabilities {
			if strings.EqualFold(capName, s) {
				return true
			}
		}
	}
	return false
}

// delegate runs one loop per specialist concurrently and waits for all of
// them. Each goroutine owns its result slot.
func (c *Coordinator) delegate(ctx context.Context, dept *models.Department, specialists []models.Agent, prompt string, tc TaskContext) []SpecialistResult {
	results := make([]SpecialistResult, len(specialists))
	var wg sync.WaitGroup
	for i, agent := range specialists {
		wg.Add(1)
		go func(i int, agent models.Agent) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.svc.Logger.Error("specialist panicked", "agent", agent.ID, "panic", r)
					results[i] = SpecialistResult{
						AgentID:        agent.ID,
						AgentName:      agent.Name,
						Specialization: agent.Specialization,
						ReviewStatus:   models.ReviewRejected,
						ReviewNotes:    fmt.Sprintf("Rejected: specialist panicked: %v", r),
						LastError:      fmt.Sprint(r),
					}
				}
			}()
			results[i] = c.loop.Run(ctx, SpecialistTask{
				Agent:        agent,
				Department:   dept,
				Instructions: specialistInstructions(agent, prompt),
				Threshold:    EffectiveThreshold(&agent, dept, c.defaultThreshold),
				MaxRetries:   c.maxRetries(agent),
				Context:      tc,
			})
		}(i, agent)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) maxRetries(a models.Agent) int {
	if a.MaxRetries != nil {
		return *a.MaxRetries
	}
	return c.defaultMaxRetries
}

// EffectiveThreshold resolves agent threshold, then department minimum, then
// the default. An explicit agent threshold of 0 means every result passes.
func EffectiveThreshold(agent *models.Agent, dept *models.Department, def float64) float64 {
	if agent != nil && agent.PassingThreshold != nil {
		return *agent.PassingThreshold
	}
	if dept != nil && dept.MinQualityThreshold != nil {
		return *dept.MinQualityThreshold
	}
	return def
}

// ReviewStatusFor grades a score against a threshold. Scores within ten
// points above the threshold need revision.
func ReviewStatusFor(score, threshold float64) models.ReviewStatus {
	switch {
	case threshold == 0:
		return models.ReviewApproved
	case score < threshold:
		return models.ReviewRejected
	case score < threshold+10:
		return models.ReviewRevisionNeeded
	}
	return models.ReviewApproved
}

// review confirms each result's grade. The specialist loop already graded
// and stored every result it produced, so only results without output, such
// as a recovered panic, can change here.
func review(results []SpecialistResult) {
	for i := range results {
		r := &results[i]
		status := ReviewStatusFor(r.QualityScore, r.Threshold)
		if r.Output == nil {
			status = models.ReviewRejected
		}
		if status == r.ReviewStatus {
			continue
		}
		r.ReviewStatus = status
		switch status {
		case models.ReviewRevisionNeeded:
			r.ReviewNotes = revisionNote(r.QualityScore, r.Threshold)
		case models.ReviewRejected:
			if r.ReviewNotes == "" {
				r.ReviewNotes = fmt.Sprintf("Rejected: score %.0f below threshold %.0f", r.QualityScore, r.Threshold)
			}
		}
	}
}

func revisionNote(score, threshold float64) string {
	return fmt.Sprintf("Score %.0f is within 10 points of threshold %.0f; revision needed", score, threshold)
}

// DepartmentQuality combines approval rate and mean specialist score. With no
// specialists it returns DefaultDepartmentQuality.
func DepartmentQuality(results []SpecialistResult) float64 {
	if len(results) == 0 {
		return DefaultDepartmentQuality
	}
	var approved int
	var sum float64
	for _, r := range results {
		if r.ReviewStatus == models.ReviewApproved {
			approved++
		}
		sum += r.QualityScore
	}
	n := float64(len(results))
	approvalRate := float64(approved) / n * 100
	return math.Round(approvalRate*0.6 + (sum/n)*0.4)
}

func specialistInstructions(agent models.Agent, prompt string) string {
	if agent.Specialization == "" {
		return prompt
	}
	return fmt.Sprintf("As the %s specialist, handle the %s aspects of this request.\n\n%s",
		agent.Name, agent.Specialization, prompt)
}

func buildSynthesisPrompt(prompt string, results []SpecialistResult) string {
	var b strings.Builder
	b.WriteString("Original request:\n")
	b.WriteString(prompt)
	b.WriteString("\n\n")

	approved := 0
	for _, r := range results {
		if r.ReviewStatus != models.ReviewApproved || r.Output == nil {
			continue
		}
		approved++
		fmt.Fprintf(&b, "--- %s (%s), quality %.0f ---\n%s\n\n", r.AgentName, r.Specialization, r.QualityScore, *r.Output)
	}
	if approved == 0 {
		b.WriteString("No specialist output met the quality bar. Produce the result directly from the original request.\n")
		return b.String()
	}
	b.WriteString("Combine the approved specialist contributions above into one cohesive final result. ")
	b.WriteString("Resolve contradictions, remove repetition and keep the strongest material.")
	return b.String()
}
