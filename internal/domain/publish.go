package domain

import "time"

// JobStatus represents the lifecycle state of a publish job.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobInFlight    JobStatus = "in_flight"
	JobSucceeded   JobStatus = "succeeded"
	JobFailed      JobStatus = "failed"
	JobCircuitOpen JobStatus = "circuit_open"
)

// Terminal reports whether the job status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCircuitOpen
}

// PublishJob is one destination-specific attempt to apply an approved
// change set. Owned by the publisher; immutable once terminal.
type PublishJob struct {
	ID          string    `json:"id"`
	ReviewID    string    `json:"review_id"`
	Destination string    `json:"destination"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// BreakerState represents the circuit breaker state for one destination.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)
