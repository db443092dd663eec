package ledger

import (
	"strings"
	"time"
)

// Outcome records how processing a file ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ParseOutcome converts a string into a known Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	normalized := Outcome(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case OutcomeSucceeded, OutcomeFailed:
		return normalized, true
	}
	return "", false
}

// Entry is one row of the processed-file ledger.
type Entry struct {
	Path        string
	Outcome     Outcome
	Reason      string
	NASC        *float64
	Latitude    *float64
	Longitude   *float64
	Miles       float64
	SeabedM     *float64
	SampleTime  *time.Time
	ProcessedAt time.Time
}

// ReportStatus is the dispatch lifecycle of a sealed window report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportDelivered ReportStatus = "delivered"
	ReportFailed    ReportStatus = "failed"
)

// Report is one row of the outbound report queue.
type Report struct {
	ID          string
	WindowStart time.Time
	WindowEnd   time.Time
	Subject     string
	Body        string
	Attachment  string
	Recipients  []string
	Status      ReportStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the report will never be dispatched again.
func (r *Report) Terminal() bool {
	return r.Status == ReportDelivered || r.Status == ReportFailed
}

// LedgerStats summarizes ledger contents per outcome.
type LedgerStats struct {
	Total     int
	Succeeded int
	Failed    int
}
