package domain

import "time"

// ReviewStatus represents the approval state of a proposed change set.
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewInReview      ReviewStatus = "in_review"
	ReviewApproved      ReviewStatus = "approved"
	ReviewApprovedEdits ReviewStatus = "approved_with_modifications"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewAutoApproved  ReviewStatus = "auto_approved"
)

// Terminal reports whether the review status admits no further actions.
// Every non-initial state except in_review is terminal.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewApproved, ReviewApprovedEdits, ReviewRejected, ReviewAutoApproved:
		return true
	}
	return false
}

// Approved reports whether the status allows publication.
func (s ReviewStatus) Approved() bool {
	switch s {
	case ReviewApproved, ReviewApprovedEdits, ReviewAutoApproved:
		return true
	}
	return false
}

// AuditEntry is one line in a review's audit log. Appended atomically with
// the state transition it records.
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Review is the human-in-the-loop approval record for a completed task graph.
// Never deleted; terminal reviews are retained for audit.
type Review struct {
	ID         string                       `json:"id"`
	ChangeID   string                       `json:"change_id"`
	Source     string                       `json:"source"`
	Status     ReviewStatus                 `json:"status"`
	Reviewer   string                       `json:"reviewer,omitempty"`
	AuditLog   []AuditEntry                 `json:"audit_log"`
	ChangeSet  map[string]map[string]string `json:"change_set"` // task id -> output
	Confidence float64                      `json:"confidence"`
	CreatedAt  time.Time                    `json:"created_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}
