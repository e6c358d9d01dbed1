package database

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run is one recorded job execution.
type Run struct {
	ID         int64
	Kind       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Collected  int
	Briefs     int
	Published  int
	Entries    int
	Error      string
}

// Duration is zero for a run that has not finished.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome holds the counts recorded when a run finishes.
type Outcome struct {
	Status    string
	Collected int
	Briefs    int
	Published int
	Entries   int
	Err       error
}

// Stats summarizes the ledger.
type Stats struct {
	Runs      int
	Succeeded int
	Failed    int
	Skipped   int
	LastRun   *Run
}
