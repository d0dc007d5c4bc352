package agents

import (
	"context"
	"errors"
	"time"

	"brigade/internal/models"
)

// auditTrail writes one AuditExecution and its event log. Store failures are
// logged and swallowed so bookkeeping never changes an execution's outcome.
type auditTrail struct {
	svc Services
	id  string
}

func (s Services) beginAudit(ctx context.Context, agent models.Agent, prompt string, tc TaskContext) *auditTrail {
	t := &auditTrail{svc: s}
	if s.Executions == nil {
		return t
	}

	now := time.Now()
	rec := &models.AuditExecution{
		AgentID:        agent.ID,
		DepartmentID:   tc.DepartmentID,
		ProjectID:      tc.ProjectID,
		ConversationID: tc.ConversationID,
		RunID:          tc.RunID,
		Prompt:         prompt,
		Status:         models.ExecutionStatusRunning,
		ReviewStatus:   models.ReviewPending,
		StartedAt:      &now,
	}
	id, err := s.Executions.Create(ctx, rec)
	if err != nil {
		s.Logger.Warn("creating execution record", "agent", agent.ID, "error", err)
		return t
	}
	t.id = id
	return t
}

func (t *auditTrail) event(ctx context.Context, typ, name, status, message string, d time.Duration) {
	if t.id == "" {
		return
	}
	ev := models.ExecutionEvent{
		Type:       typ,
		Name:       name,
		Status:     status,
		Message:    message,
		DurationMs: d.Milliseconds(),
		Timestamp:  time.Now(),
	}
	if err := t.svc.Executions.AppendEvent(context.WithoutCancel(ctx), t.id, ev); err != nil {
		t.svc.Logger.Warn("appending execution event", "execution", t.id, "event", name, "error", err)
	}
}

func (t *auditTrail) finish(ctx context.Context, upd models.ExecutionUpdate) {
	if t.id == "" {
		return
	}
	if upd.CompletedAt == nil {
		now := time.Now()
		upd.CompletedAt = &now
	}
	if err := t.svc.Executions.Update(context.WithoutCancel(ctx), t.id, upd); err != nil {
		t.svc.Logger.Warn("updating execution record", "execution", t.id, "error", err)
	}
}

// failureStatus maps an invocation error to a terminal execution status.
func failureStatus(err error) models.ExecutionStatus {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ExecutionStatusTimeout
	case errors.Is(err, context.Canceled):
		return models.ExecutionStatusCancelled
	}
	return models.ExecutionStatusFailed
}

// errorCode classifies an error for the audit record.
func errorCode(err error) string {
	var execErr *ExecutionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	case errors.As(err, &execErr):
		return "EXECUTION_FAILED"
	}
	return "UNKNOWN"
}

func (s Services) updatePerformance(ctx context.Context, agentID string, success bool, elapsed time.Duration) {
	if s.Agents == nil {
		return
	}
	if err := s.Agents.UpdatePerformance(context.WithoutCancel(ctx), agentID, success, elapsed); err != nil {
		s.Logger.Warn("updating agent performance", "agent", agentID, "error", err)
	}
}

// invokeRecorded runs a single invocation with its own audit record and
// performance update. It is used for department heads and model routing,
// which do not retry.
func (s Services) invokeRecorded(ctx context.Context, agent models.Agent, prompt string, tc TaskContext) (*Invocation, string, error) {
	trail := s.beginAudit(ctx, agent, prompt, tc)
	trail.event(ctx, models.EventLifecycle, "invocation_started", "running", "", 0)

	inv, err := s.Invoker.Invoke(ctx, agent.ID, prompt, tc)
	if err != nil {
		err = &ExecutionError{AgentID: agent.ID, Attempt: 1, Err: err}
		status := failureStatus(err)
		msg := err.Error()
		code := errorCode(err)
		trail.event(ctx, models.EventLifecycle, "invocation_failed", string(status), msg, 0)
		trail.finish(ctx, models.ExecutionUpdate{Status: &status, ErrorMessage: &msg, ErrorCode: &code})
		s.updatePerformance(ctx, agent.ID, false, 0)
		return nil, trail.id, err
	}

	status := models.ExecutionStatusCompleted
	review := models.ReviewApproved
	now := time.Now()
	upd := models.ExecutionUpdate{
		Status:        &status,
		Output:        &inv.Output,
		InputTokens:   &inv.Usage.InputTokens,
		OutputTokens:  &inv.Usage.OutputTokens,
		EstimatedCost: &inv.Usage.Cost,
		ReviewStatus:  &review,
		ReviewedAt:    &now,
	}
	if inv.QualityScore != nil {
		upd.QualityScore = inv.QualityScore
	}
	if len(inv.Dimensions) > 0 {
		upd.Dimensions = scoreMap(inv.Dimensions)
	}
	trail.event(ctx, models.EventToolCall, invocationToolName(inv), "completed", "", inv.Elapsed)
	trail.finish(ctx, upd)
	s.updatePerformance(ctx, agent.ID, true, inv.Elapsed)
	s.Recorder.RecordTokens(tc.DepartmentID, inv.Usage.InputTokens, inv.Usage.OutputTokens)
	return inv, trail.id, nil
}

func invocationToolName(inv *Invocation) string {
	if inv.Model != "" {
		return "llm:" + inv.Model
	}
	return "llm"
}
