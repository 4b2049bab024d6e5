package domain

import "time"

// Decision is the outcome of a single rate gate admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the caller's budget frees up: oldest+window on denial, now+window on admission.
	ResetAt time.Time
	// RetryAfter is only set on denial.
	RetryAfter time.Duration
}

// WindowState is a snapshot of one identity's shared window after recording a request.
type WindowState struct {
	Admitted bool
	Count    int
	Oldest   time.Time
}
