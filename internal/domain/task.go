package domain

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskSkipped
}

// Task is one unit of generation/analysis work derived from a ChangeEvent.
// Owned and mutated exclusively by the scheduler run that created it.
type Task struct {
	ID           string            `json:"id"`
	ChangeID     string            `json:"change_id"`
	Role         string            `json:"role"`
	Input        map[string]string `json:"input,omitempty"`
	Predecessors []string          `json:"predecessors,omitempty"`
	Status       TaskStatus        `json:"status"`
	Result       map[string]string `json:"result,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	Error        *TaskError        `json:"error,omitempty"`
	Trace        *ReasoningTrace   `json:"trace,omitempty"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
}

// TaskError describes why a task failed.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TaskError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ReasoningStep is one think/act/observe cycle in an escalated task.
type ReasoningStep struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// ReasoningTrace records the bounded reasoning loop of an escalated task.
// Exists only for tasks the escalation policy sent down the iterative path.
type ReasoningTrace struct {
	Steps      []ReasoningStep `json:"steps"`
	Confidence float64         `json:"confidence"`
	Completed  bool            `json:"completed"` // completion predicate satisfied
}

// Append records one reasoning step and updates the running confidence.
func (t *ReasoningTrace) Append(step ReasoningStep, confidence float64) {
	t.Steps = append(t.Steps, step)
	t.Confidence = confidence
}

// RunStatus is the aggregate outcome of one scheduler run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)
