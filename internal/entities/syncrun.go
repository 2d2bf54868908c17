package entities

import (
	"time"
)

// Run status values stored in the ledger
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// SyncRun records the outcome of a single synchronization run
type SyncRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Stage      string    // Last state-machine stage reached
	Status     string    // RunSucceeded or RunFailed
	Known      int       // Records in the dataset before the run
	Fetched    int       // Records returned by the feed
	Added      int       // Net new identifiers
	Published  bool      // Whether a commit was pushed
	Watermark  time.Time // Zero when the dataset was empty
	Message    string    // Commit message, empty when nothing was published
	Error      string
}

// Succeeded reports whether the run completed without error
func (r *SyncRun) Succeeded() bool {
	return r.Status == RunSucceeded
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
