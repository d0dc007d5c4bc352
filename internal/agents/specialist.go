package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brigade/internal/models"
	"brigade/internal/quality"
)

// SpecialistTask is one unit of delegated work.
type SpecialistTask struct {
	Agent        models.Agent
	Department   *models.Department
	Instructions string
	Threshold    float64
	MaxRetries   int
	Context      TaskContext
}

// SpecialistResult is the terminal outcome of a specialist loop.
type SpecialistResult struct {
	AgentID        string                        `json:"agent_id"`
	AgentName      string                        `json:"agent_name"`
	Specialization string                        `json:"specialization"`
	Output         *string                       `json:"output"`
	QualityScore   float64                       `json:"quality_score"`
	Dimensions     map[quality.Dimension]float64 `json:"dimensions,omitempty"`
	Threshold      float64                       `json:"threshold"`
	Elapsed        time.Duration                 `json:"elapsed"`
	ReviewStatus   models.ReviewStatus           `json:"review_status"`
	ReviewNotes    string                        `json:"review_notes"`
	Attempts       int                           `json:"attempts"`
	RetriesUsed    int                           `json:"retries_used"`
	Usage          TokenUsage                    `json:"usage"`
	ExecutionID    string                        `json:"execution_id,omitempty"`
	LastError      string                        `json:"last_error,omitempty"`
	Gate           *QualityGateFailure           `json:"-"`
}

// SpecialistLoop runs a specialist through a bounded retry-with-feedback
// state machine. Retries are strictly sequential; the loop itself is safe to
// run concurrently for different tasks.
type SpecialistLoop struct {
	svc            Services
	attemptTimeout time.Duration
}

// LoopOption configures a SpecialistLoop.
type LoopOption func(*SpecialistLoop)

// WithAttemptTimeout bounds each capability invocation. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) LoopOption {
	return func(l *SpecialistLoop) { l.attemptTimeout = d }
}

// NewSpecialistLoop creates a loop over the given services.
func NewSpecialistLoop(svc Services, opts ...LoopOption) *SpecialistLoop {
	l := &SpecialistLoop{svc: svc.withDefaults(), attemptTimeout: DefaultAttemptTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the task until it is approved or its retries are exhausted.
// Execution and quality failures are folded into a rejected result; Run never
// returns an error.
func (l *SpecialistLoop) Run(ctx context.Context, task SpecialistTask) SpecialistResult {
	start := time.Now()
	agent := task.Agent
	maxRetries := task.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	profile := departmentKey(task.Department)
	log := l.svc.Logger.With("agent", agent.ID, "department", profile)

	res := SpecialistResult{
		AgentID:        agent.ID,
		AgentName:      agent.Name,
		Specialization: agent.Specialization,
		Threshold:      task.Threshold,
	}

	trail := l.svc.beginAudit(ctx, agent, task.Instructions, task.Context)
	res.ExecutionID = trail.id

	var (
		feedback   []string
		lastOutput *string
		lastErr    error
		usage      TokenUsage
	)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		res.Attempts = attempt + 1

		prompt := buildAttemptPrompt(task.Instructions, lastOutput, feedback, attempt)
		tc := task.Context
		tc.Attempt = attempt
		trail.event(ctx, models.EventLifecycle, "attempt_started", "running", fmt.Sprintf("attempt %d", attempt+1), 0)

		inv, err := l.invoke(ctx, agent.ID, prompt, tc)
		if err != nil {
			lastErr = &ExecutionError{AgentID: agent.ID, Attempt: attempt + 1, Err: err}
			feedback = append(feedback, fmt.Sprintf("Attempt %d failed: %v", attempt+1, err))
			trail.event(ctx, models.EventLifecycle, "attempt_failed", string(failureStatus(err)), err.Error(), 0)
			l.svc.Recorder.RecordAttempt(profile, "error")
			log.Warn("specialist attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		lastErr = nil
		usage = usage.Add(inv.Usage)
		out := inv.Output
		lastOutput = &out
		res.QualityScore, res.Dimensions = l.assess(inv, profile)
		trail.event(ctx, models.EventToolCall, invocationToolName(inv), "completed",
			fmt.Sprintf("score %.1f", res.QualityScore), inv.Elapsed)

		if task.Threshold == 0 || res.QualityScore >= task.Threshold {
			l.svc.Recorder.RecordAttempt(profile, "pass")
			res.ReviewStatus = ReviewStatusFor(res.QualityScore, task.Threshold)
			res.RetriesUsed = attempt
			switch {
			case res.ReviewStatus == models.ReviewRevisionNeeded:
				res.ReviewNotes = revisionNote(res.QualityScore, task.Threshold)
			case attempt == 0:
				res.ReviewNotes = "Approved on first attempt"
			default:
				res.ReviewNotes = fmt.Sprintf("Approved after %d retries", attempt)
			}
			trail.event(ctx, models.EventLifecycle, strings.ReplaceAll(string(res.ReviewStatus), "-", "_"), "completed", res.ReviewNotes, 0)
			break
		}

		l.svc.Recorder.RecordAttempt(profile, "below_threshold")
		line := fmt.Sprintf("Quality score %.0f below threshold %.0f; improve quality, relevance, consistency",
			res.QualityScore, task.Threshold)
		feedback = append(feedback, line)
		trail.event(ctx, models.EventLifecycle, "quality_below_threshold", "running", line, 0)
		log.Debug("specialist below threshold", "attempt", attempt+1, "score", res.QualityScore, "threshold", task.Threshold)
	}

	res.Output = lastOutput
	res.Usage = usage
	res.Elapsed = time.Since(start)

	if res.ReviewStatus == "" {
		res.ReviewStatus = models.ReviewRejected
		if lastOutput == nil {
			res.QualityScore = 0
			res.Dimensions = nil
		}
		if res.Attempts > 0 {
			res.RetriesUsed = res.Attempts - 1
		}
		res.ReviewNotes = fmt.Sprintf("Rejected after %d retries", res.RetriesUsed)
		if lastErr != nil {
			res.LastError = lastErr.Error()
			res.ReviewNotes += fmt.Sprintf("; last error: %v", lastErr)
		} else {
			res.Gate = &QualityGateFailure{
				AgentID:   agent.ID,
				Score:     res.QualityScore,
				Threshold: task.Threshold,
				Attempts:  res.Attempts,
			}
		}
		trail.event(ctx, models.EventLifecycle, "rejected", "completed", res.ReviewNotes, 0)
	}

	trail.finish(ctx, l.terminalUpdate(res, lastErr))
	l.svc.updatePerformance(ctx, agent.ID, res.ReviewStatus == models.ReviewApproved, res.Elapsed)
	l.svc.Recorder.RecordSpecialist(profile, res.ReviewStatus, res.QualityScore, res.Attempts)
	l.svc.Recorder.RecordTokens(profile, usage.InputTokens, usage.OutputTokens)
	return res
}

func (l *SpecialistLoop) invoke(ctx context.Context, agentID, prompt string, tc TaskContext) (*Invocation, error) {
	if l.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.attemptTimeout)
		defer cancel()
	}
	return l.svc.Invoker.Invoke(ctx, agentID, prompt, tc)
}

// assess turns an invocation into a 0-100 score. Dimension scores take
// precedence over an overall score reported by the capability.
func (l *SpecialistLoop) assess(inv *Invocation, profile string) (float64, map[quality.Dimension]float64) {
	if len(inv.Dimensions) > 0 {
		return l.svc.Scorer.Score(inv.Dimensions, profile), inv.Dimensions
	}
	if inv.QualityScore != nil {
		return *inv.QualityScore, nil
	}
	return UnscoredQuality, nil
}

func (l *SpecialistLoop) terminalUpdate(res SpecialistResult, lastErr error) models.ExecutionUpdate {
	status := models.ExecutionStatusCompleted
	if lastErr != nil {
		status = failureStatus(lastErr)
	}
	now := time.Now()
	upd := models.ExecutionUpdate{
		Status:        &status,
		InputTokens:   &res.Usage.InputTokens,
		OutputTokens:  &res.Usage.OutputTokens,
		EstimatedCost: &res.Usage.Cost,
		ReviewStatus:  &res.ReviewStatus,
		ReviewedAt:    &now,
		RetryCount:    &res.RetriesUsed,
	}
	if res.Output != nil {
		upd.Output = res.Output
		score := res.QualityScore
		upd.QualityScore = &score
		upd.Dimensions = scoreMap(res.Dimensions)
	}
	if lastErr != nil {
		msg := lastErr.Error()
		code := errorCode(lastErr)
		upd.ErrorMessage = &msg
		upd.ErrorCode = &code
	}
	return upd
}

// buildAttemptPrompt returns the instructions verbatim on the first attempt
// and adds the prior output and accumulated feedback on retries.
func buildAttemptPrompt(instructions string, lastOutput *string, feedback []string, attempt int) string {
	if attempt == 0 {
		return instructions
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n--- Previous attempt output ---\n")
	if lastOutput != nil {
		b.WriteString(*lastOutput)
	} else {
		b.WriteString("(no output was produced)")
	}
	b.WriteString("\n\n--- Feedback so far ---\n")
	for _, line := range feedback {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nRevise your response so it addresses every point of feedback above and improves on the previous attempt.")
	return b.String()
}

func departmentKey(d *models.Department) string {
	if d == nil {
		return ""
	}
	if d.Slug != "" {
		return d.Slug
	}
	return d.ID
}

func scoreMap(dims map[quality.Dimension]float64) models.ScoreMap {
	if len(dims) == 0 {
		return nil
	}
	m := make(models.ScoreMap, len(dims))
	for d, v := range dims {
		m[string(d)] = v
	}
	return m
}
