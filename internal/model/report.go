package model

import "fmt"

// SyncOutcome classifies a finished reconciliation for the UI layer.
type SyncOutcome int

const (
	SyncFull SyncOutcome = iota
	SyncPartial
	SyncFailed
)

func (o SyncOutcome) String() string {
	switch o {
	case SyncFull:
		return "full"
	case SyncPartial:
		return "partial"
	case SyncFailed:
		return "failed"
	}
	return "unknown"
}

// ItemFailure records one failed subject or grade during reconciliation.
type ItemFailure struct {
	Kind   string // "subject" or "grade"
	ID     string // domain id of the failed item
	Reason string // sanitized message, safe to log
}

// SyncReport aggregates continue-on-error results of one reconciliation pass.
// The UI layer receives counts, never raw crypto or transport error text.
type SyncReport struct {
	Succeeded int
	Failed    int
	Failures  []ItemFailure
}

// Record adds a failure to the report.
func (r *SyncReport) Record(kind, id string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, ItemFailure{Kind: kind, ID: id, Reason: err.Error()})
}

// Outcome classifies the report.
func (r *SyncReport) Outcome() SyncOutcome {
	switch {
	case r.Failed == 0:
		return SyncFull
	case r.Succeeded == 0:
		return SyncFailed
	default:
		return SyncPartial
	}
}

// Summary is a one-line, user-presentable result.
func (r *SyncReport) Summary() string {
	return fmt.Sprintf("sync %s: %d succeeded, %d failed", r.Outcome(), r.Succeeded, r.Failed)
}
