package analytics

import (
	"fmt"
	"math"

	"brigade/internal/models"
)

// AggregationError reports an execution record that cannot be aggregated.
type AggregationError struct {
	RecordID string
	Reason   string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("record %q: %s", e.RecordID, e.Reason)
}

func validateRecord(rec *models.AuditExecution) error {
	fail := func(reason string) error {
		return &AggregationError{RecordID: rec.ID, Reason: reason}
	}
	switch {
	case rec.ID == "":
		return fail("missing id")
	case !rec.Status.Valid():
		return fail(fmt.Sprintf("unknown status %q", rec.Status))
	case rec.QualityScore != nil && (math.IsNaN(*rec.QualityScore) || *rec.QualityScore < 0 || *rec.QualityScore > 100):
		return fail(fmt.Sprintf("quality score %.2f out of range", *rec.QualityScore))
	case rec.InputTokens < 0 || rec.OutputTokens < 0 || rec.TotalTokens < 0:
		return fail("negative token count")
	case rec.EstimatedCost < 0:
		return fail("negative cost")
	case rec.ReviewStatus != "" && !rec.ReviewStatus.Valid():
		return fail(fmt.Sprintf("unknown review status %q", rec.ReviewStatus))
	}
	if rec.StartedAt != nil && rec.CompletedAt != nil && rec.CompletedAt.Before(*rec.StartedAt) {
		return fail("completed before it started")
	}
	return nil
}
