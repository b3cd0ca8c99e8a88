package models

import (
	"time"
)

// ReconcileJob represents a scheduled reconciliation pass for an intent.
type ReconcileJob struct {
	OrderID               string
	IntentID              string
	RequiredConfirmations uint64
	RetryCount            int
	MaxRetries            int
	NextAttempt           time.Time
	ErrorType             string // Type of error that caused the retry
}

// LastAttempt reports whether this is the final attempt the job budget
// allows.
func (j ReconcileJob) LastAttempt() bool {
	return j.RetryCount >= j.MaxRetries-1
}
