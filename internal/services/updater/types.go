package updater

import (
	"fmt"
	"time"

	"fracttalsync/internal/report"
)

// StatusDone is the exact status value that marks a row as already applied.
// Anything else, including blank, means the row is still pending.
const StatusDone = "OK"

// CounterKind is the cumulative metric a row updates.
type CounterKind int

const (
	KindRuntime CounterKind = iota
	KindDistance
)

func (k CounterKind) String() string {
	if k == KindDistance {
		return "distance"
	}
	return "runtime"
}

// Unit returns the human-facing unit label for log lines.
func (k CounterKind) Unit() string {
	if k == KindDistance {
		return "km"
	}
	return "h"
}

// Outcome is the result of processing one row.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "skipped"
	}
}

// RowResult is the outcome of one row, never persisted into the report
// itself; it feeds the run summary and the log.
type RowResult struct {
	Index    int         `json:"index"`
	Asset    string      `json:"asset"`
	Category string      `json:"category"`
	Kind     CounterKind `json:"kind"`
	Delta    float64     `json:"delta"`
	NewValue float64     `json:"new_value"`
	Outcome  Outcome     `json:"outcome"`
	Message  string      `json:"message"`
}

// LogLine renders the single human-readable line every processed row gets.
func (r RowResult) LogLine() string {
	asset := r.Asset
	if asset == "" {
		asset = "?"
	}
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("row %d [%s] success: %s +%.2f %s (new total %.2f)",
			r.Index+1, asset, r.Kind, r.Delta, r.Kind.Unit(), r.NewValue)
	case OutcomeFailure:
		return fmt.Sprintf("row %d [%s] failed: %s", r.Index+1, asset, r.Message)
	default:
		return fmt.Sprintf("row %d [%s] skipped: %s", r.Index+1, asset, r.Message)
	}
}

// RunSummary aggregates one full pass over a report.
type RunSummary struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Rows      []RowResult `json:"rows"`
	Canceled  bool        `json:"canceled"`
	// PersistenceFailed warns the caller that statuses were NOT saved to
	// disk: rows whose external update succeeded may be resubmitted on the
	// next run.
	PersistenceFailed bool   `json:"persistence_failed"`
	PersistenceError  string `json:"persistence_error,omitempty"`
}

func (s *RunSummary) add(res RowResult) {
	s.Rows = append(s.Rows, res)
	switch res.Outcome {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeFailure:
		s.Failed++
	default:
		s.Skipped++
	}
}

// RunRequest identifies what a run should process.
type RunRequest struct {
	ProfileID string `json:"profile_id"`
	FilePath  string `json:"file_path"`
}

// RunProgress is the live view of a background run, kept in memory and
// mirrored to the run_records table.
type RunProgress struct {
	RunID       string      `json:"run_id"`
	Status      string      `json:"status"` // starting, running, completed, canceled, error
	Progress    int         `json:"progress"`
	Messages    []string    `json:"messages"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// CounterClient is the external asset-management service. The core treats
// submission as synchronous and single-attempt. The counter kind never
// travels to the vendor: a Fracttal meter accumulates whatever unit it was
// registered with.
type CounterClient interface {
	Authenticate() error
	SubmitDelta(assetID string, delta float64) (float64, error)
}

// ReportStore loads and saves activity reports.
type ReportStore interface {
	Load(path string) (*report.Report, error)
	Save(r *report.Report) error
}

// ValueError means a row's counter delta is missing or not a usable number.
type ValueError struct {
	Field  string
	Raw    string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %s", e.Field, e.Raw, e.Reason)
}

// ClassificationError means a row's category could not be mapped to a
// counter kind; only raised when the classifier runs in strict mode.
type ClassificationError struct {
	Category string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unrecognized category %q", e.Category)
}
