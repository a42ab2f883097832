// Package review drives the human approval state machine for proposed
// change sets. All actions for a given review are serialized through a
// per-id lock so concurrent decisions race safely and deterministically.
package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

// AutoApprove decides at creation time whether a review skips human review
// entirely. Supplied by the host; evaluated exactly once per review.
type AutoApprove func(domain.Review) bool

// Store persists reviews. Save must write status and audit log atomically;
// a review is never partially written.
type Store interface {
	Save(ctx context.Context, r *domain.Review) error
	Get(ctx context.Context, id string) (*domain.Review, error)
	List(ctx context.Context, limit int) ([]domain.Review, error)
}

// ConfidenceAbove returns an auto-approval predicate that passes reviews
// whose confidence meets the threshold and whose change set carries no
// sensitive-content marker.
func ConfidenceAbove(threshold float64) AutoApprove {
	return func(r domain.Review) bool {
		if r.Confidence < threshold {
			return false
		}
		for _, out := range r.ChangeSet {
			if out["sensitive"] == "true" {
				return false
			}
		}
		return true
	}
}

// Manager owns all state-changing access to reviews.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	store Store
	auto  AutoApprove
	sink  telemetry.Sink
}

// Option configures the manager.
type Option func(*Manager)

// WithAutoApprove sets the auto-approval predicate.
func WithAutoApprove(fn AutoApprove) Option {
	return func(m *Manager) { m.auto = fn }
}

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// NewManager creates a review manager backed by the given store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		locks: make(map[string]*sync.Mutex),
		store: store,
		sink:  telemetry.NopSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the serialization lock for one review id.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Open creates a review from a completed run. tasks is the run's task map;
// only succeeded task outputs enter the proposed change set. Returns nil
// (no review) when every task was skipped or failed.
func (m *Manager) Open(ctx context.Context, change domain.ChangeEvent, tasks map[string]*domain.Task) (*domain.Review, error) {
	changeSet := make(map[string]map[string]string)
	confidence := 1.0
	nonSkipped := 0

	for id, t := range tasks {
		if t.Status != domain.TaskSkipped {
			nonSkipped++
		}
		if t.Status != domain.TaskSucceeded {
			continue
		}
		changeSet[id] = t.Result
		if t.Confidence < confidence {
			confidence = t.Confidence
		}
	}

	if nonSkipped == 0 || len(changeSet) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	r := &domain.Review{
		ID:         uuid.New().String(),
		ChangeID:   change.ID(),
		Source:     change.Source,
		Status:     domain.ReviewPending,
		ChangeSet:  changeSet,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.AuditLog = append(r.AuditLog, domain.AuditEntry{
		Actor:     "system",
		Action:    "open",
		Timestamp: now,
		Note:      fmt.Sprintf("%d task outputs proposed", len(changeSet)),
	})

	// Auto-approval is evaluated exactly once, at creation.
	if m.auto != nil && m.auto(*r) {
		r.Status = domain.ReviewAutoApproved
		r.AuditLog = append(r.AuditLog, domain.AuditEntry{
			Actor:     "system",
			Action:    "auto_approve",
			Timestamp: now,
			Note:      fmt.Sprintf("confidence %.2f", confidence),
		})
	}

	if err := m.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	ev := telemetry.NewEvent(telemetry.EventReviewOpened)
	ev.ReviewID = r.ID
	ev.ChangeID = r.ChangeID
	ev.Status = string(r.Status)
	telemetry.Emit(m.sink, ev)

	return r, nil
}

// Get returns one review.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Review, error) {
	return m.store.Get(ctx, id)
}

// List returns recent reviews.
func (m *Manager) List(ctx context.Context, limit int) ([]domain.Review, error) {
	return m.store.List(ctx, limit)
}

// Assign moves a pending review to in_review for the given reviewer.
func (m *Manager) Assign(ctx context.Context, id, reviewer string) (*domain.Review, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReviewPending {
		return nil, &domain.TransitionError{ReviewID: id, From: r.Status, Action: "assign"}
	}

	r.Status = domain.ReviewInReview
	r.Reviewer = reviewer
	m.appendAudit(r, reviewer, "assign", "")

	if err := m.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	m.emitTransition(r, "assign")
	return r, nil
}

// Approve transitions an in_review review to approved.
func (m *Manager) Approve(ctx context.Context, id, actor, note string) (*domain.Review, error) {
	return m.decide(ctx, id, actor, "approve", note, domain.ReviewApproved, nil)
}

// ApproveWithModifications approves the review after applying the given
// edits to the proposed change set (keyed by task id).
func (m *Manager) ApproveWithModifications(ctx context.Context, id, actor string, edits map[string]map[string]string, note string) (*domain.Review, error) {
	return m.decide(ctx, id, actor, "approve_with_modifications", note, domain.ReviewApprovedEdits, edits)
}

// Reject transitions an in_review review to rejected.
func (m *Manager) Reject(ctx context.Context, id, actor, reason string) (*domain.Review, error) {
	return m.decide(ctx, id, actor, "reject", reason, domain.ReviewRejected, nil)
}

// decide applies one terminal action under the review's lock. Repeating the
// action that produced the current terminal state is a no-op success;
// a different terminal action is a conflict; anything else is only valid
// from in_review.
func (m *Manager) decide(ctx context.Context, id, actor, action, note string, target domain.ReviewStatus, edits map[string]map[string]string) (*domain.Review, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.Status.Terminal() {
		if r.Status == target {
			// Retried client request: nothing to do, no audit entry.
			return r, nil
		}
		return nil, fmt.Errorf("%w: review %s already %s, cannot %s",
			domain.ErrConflictingDecision, id, r.Status, action)
	}
	if r.Status != domain.ReviewInReview {
		return nil, &domain.TransitionError{ReviewID: id, From: r.Status, Action: action}
	}

	for taskID, edit := range edits {
		out, ok := r.ChangeSet[taskID]
		if !ok {
			out = make(map[string]string, len(edit))
			r.ChangeSet[taskID] = out
		}
		for k, v := range edit {
			out[k] = v
		}
	}

	r.Status = target
	m.appendAudit(r, actor, action, note)

	if err := m.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	m.emitTransition(r, action)
	return r, nil
}

func (m *Manager) appendAudit(r *domain.Review, actor, action, note string) {
	now := time.Now().UTC()
	r.UpdatedAt = now
	r.AuditLog = append(r.AuditLog, domain.AuditEntry{
		Actor:     actor,
		Action:    action,
		Timestamp: now,
		Note:      note,
	})
}

func (m *Manager) emitTransition(r *domain.Review, action string) {
	ev := telemetry.NewEvent(telemetry.EventReviewTransition)
	ev.ReviewID = r.ID
	ev.ChangeID = r.ChangeID
	ev.Status = string(r.Status)
	ev.Extra = map[string]any{"action": action, "reviewer": r.Reviewer}
	telemetry.Emit(m.sink, ev)
}
