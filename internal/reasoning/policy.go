// Package reasoning decides how deeply a task is reasoned about and runs
// the bounded think/act/observe loop for escalated tasks.
package reasoning

import (
	"strings"

	"github.com/dcastillo/docrelay/internal/config"
	"github.com/dcastillo/docrelay/internal/domain"
)

// Mode selects between one capability call and an iterative loop.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeIterative Mode = "iterative"
)

// Decision is the escalation policy's verdict for one task.
type Decision struct {
	Mode     Mode
	MaxSteps int

	// RoleOverride optionally redirects the task to a different capability.
	// The shipped policy never sets it; hosts wrapping the policy may.
	RoleOverride string
}

// Policy decides execution mode from task role and change complexity.
// Pure: no state beyond its configuration, safe for concurrent use.
type Policy struct {
	// Threshold is the complexity score at or above which tasks escalate.
	Threshold float64

	// MaxSteps bounds the iterative loop for escalated tasks.
	MaxSteps int
}

// NewPolicy builds a policy from environment configuration.
func NewPolicy() Policy {
	cfg := config.Get()
	return Policy{
		Threshold: cfg.ComplexityThreshold,
		MaxSteps:  cfg.MaxReasoningSteps,
	}
}

// Decide inspects a task and its originating change and returns the
// execution mode. Analysis-class roles escalate on complex changes;
// everything else is a single capability call.
func (p Policy) Decide(task domain.Task, change domain.ChangeEvent) Decision {
	steps := p.MaxSteps
	if steps <= 0 {
		steps = 5
	}

	if escalatableRole(task.Role) && ScoreComplexity(change) >= p.Threshold {
		return Decision{Mode: ModeIterative, MaxSteps: steps}
	}
	return Decision{Mode: ModeSingle, MaxSteps: 1}
}

// escalatableRole reports whether a role benefits from multi-step reasoning.
// Quality checks and mechanical generation stay single-shot.
func escalatableRole(role string) bool {
	return strings.Contains(role, "analysis") || strings.Contains(role, "generation")
}

// securityMarkers are payload keys or values that raise change complexity.
var securityMarkers = []string{"security", "compliance", "auth", "pii"}

// ScoreComplexity derives a 0..1 complexity score from a change: breadth of
// affected artifacts plus presence of security/compliance markers.
func ScoreComplexity(change domain.ChangeEvent) float64 {
	score := 0.0

	// Breadth: saturates at 8 affected artifacts.
	n := len(change.Artifacts())
	breadth := float64(n) / 8.0
	if breadth > 1 {
		breadth = 1
	}
	score += 0.6 * breadth

	// Markers: any one is enough to flag the change.
	for k, v := range change.Payload {
		for _, marker := range securityMarkers {
			if strings.Contains(strings.ToLower(k), marker) || strings.Contains(strings.ToLower(v), marker) {
				score += 0.4
				return clamp1(score)
			}
		}
	}

	return clamp1(score)
}

func clamp1(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}
