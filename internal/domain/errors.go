package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors for structured reporting.
type ErrorKind string

const (
	ErrKindCycle       ErrorKind = "cycle_detected"
	ErrKindTimeout     ErrorKind = "task_timeout"
	ErrKindTaskFailure ErrorKind = "task_failure"
	ErrKindDestination ErrorKind = "destination_failure"
	ErrKindCircuitOpen ErrorKind = "circuit_open"
)

// Sentinel errors surfaced to callers.
var (
	// ErrCycleDetected indicates the graph spec contains a dependency cycle.
	// Fatal: the run aborts before any task is dispatched.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrInvalidTransition indicates a review action that is not valid from
	// the review's current state. No state mutation occurs.
	ErrInvalidTransition = errors.New("invalid review transition")

	// ErrConflictingDecision indicates a terminal review action whose result
	// differs from the already-applied terminal decision.
	ErrConflictingDecision = errors.New("conflicting review decision")

	// ErrUnknownRole indicates no capability is registered for a role.
	ErrUnknownRole = errors.New("unknown capability role")

	// ErrUnknownDestination indicates a publish target with no adapter.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrReviewNotFound indicates the requested review does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrNotApproved indicates a publish attempt on a non-approved review.
	ErrNotApproved = errors.New("review is not approved")
)

// CycleError wraps ErrCycleDetected with the tasks involved.
type CycleError struct {
	TaskIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among %d tasks: %v", len(e.TaskIDs), e.TaskIDs)
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// TransitionError wraps ErrInvalidTransition with transition details.
type TransitionError struct {
	ReviewID string
	From     ReviewStatus
	Action   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("review %s: action %q not valid from state %q", e.ReviewID, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsCycle checks whether an error is a cycle detection failure.
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycleDetected)
}

// IsConflict checks whether an error is a conflicting review decision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflictingDecision)
}
