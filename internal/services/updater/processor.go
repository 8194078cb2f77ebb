package updater

import (
	"fmt"

	"fracttalsync/internal/report"
)

// shouldSkip is the duplicate guard: only the exact sentinel suppresses
// reprocessing. Cell whitespace is already trimmed by the store; any other
// value means "not yet confirmed done".
func shouldSkip(status string) bool {
	return status == StatusDone
}

// processRow runs the full pipeline for a single row: duplicate check,
// classification, submission, status write-back. At most one external call
// and one status mutation, and only when the row is not skipped.
func (s *Service) processRow(client CounterClient, rep *report.Report, idx int) RowResult {
	row := rep.Row(idx)
	res := RowResult{Index: idx, Asset: row.Asset, Category: row.Category}

	if row.Asset == "" {
		res.Outcome = OutcomeSkipped
		res.Message = "missing asset id"
		return res
	}

	if shouldSkip(row.Status) {
		res.Outcome = OutcomeSkipped
		res.Message = "already processed"
		return res
	}

	kind, delta, err := s.classifier.Classify(row)
	if err != nil {
		res.Outcome = OutcomeFailure
		res.Message = err.Error()
		return res
	}
	res.Kind = kind
	res.Delta = delta

	if delta == 0 {
		// Posting a no-op reading would only pollute the meter history.
		res.Outcome = OutcomeSkipped
		res.Message = "zero delta"
		return res
	}

	newValue, err := client.SubmitDelta(row.Asset, delta)
	if err != nil {
		// Status stays blank so the row is retried on the next run.
		res.Outcome = OutcomeFailure
		res.Message = err.Error()
		return res
	}

	rep.SetStatus(idx, StatusDone)
	res.Outcome = OutcomeSuccess
	res.NewValue = newValue
	res.Message = fmt.Sprintf("counter updated (+%.2f %s)", delta, kind.Unit())
	return res
}
