// Package decompose maps a change event to a task graph. Hosts may supply
// their own Decomposer; the shipped RuleDecomposer routes changes to
// capability roles by glob-matching affected artifact paths.
package decompose

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/scheduler"
)

// Decomposer produces the task graph for a change. The returned edges must
// form a DAG; the scheduler rejects anything else before dispatch.
type Decomposer interface {
	Decompose(change domain.ChangeEvent) (scheduler.GraphSpec, error)
}

// Func adapts a plain function to the Decomposer interface.
type Func func(change domain.ChangeEvent) (scheduler.GraphSpec, error)

func (f Func) Decompose(change domain.ChangeEvent) (scheduler.GraphSpec, error) {
	return f(change)
}

// Rule routes changes to one generation role. A rule matches when the
// change kind is listed (or Kinds is empty) and any artifact path matches
// any glob pattern (or Patterns is empty).
type Rule struct {
	Name     string              `json:"name"`
	Role     string              `json:"role"`
	Kinds    []domain.ChangeKind `json:"kinds,omitempty"`
	Patterns []string            `json:"patterns,omitempty"`
}

func (r Rule) matches(change domain.ChangeEvent) (bool, error) {
	if len(r.Kinds) > 0 {
		found := false
		for _, k := range r.Kinds {
			if k == change.Kind {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if len(r.Patterns) == 0 {
		return true, nil
	}
	for _, pattern := range r.Patterns {
		for _, artifact := range change.Artifacts() {
			ok, err := doublestar.Match(pattern, artifact)
			if err != nil {
				return false, fmt.Errorf("rule %s: bad pattern %q: %w", r.Name, pattern, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// DefaultRules covers the common change sources.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "api-docs", Role: "content-generation", Kinds: []domain.ChangeKind{domain.KindCodeChange}, Patterns: []string{"**/*.go", "api/**", "**/openapi.{yaml,yml,json}"}},
		{Name: "guides", Role: "content-generation", Kinds: []domain.ChangeKind{domain.KindCodeChange}, Patterns: []string{"docs/**", "**/*.md"}},
		{Name: "release-notes", Role: "content-generation", Kinds: []domain.ChangeKind{domain.KindTicketClosed}},
		{Name: "decision-log", Role: "content-generation", Kinds: []domain.ChangeKind{domain.KindDecisionRecorded}},
	}
}

// RuleDecomposer builds a three-layer graph: one analysis task, one
// generation task per matched rule, and a quality check gated on every
// generation task.
type RuleDecomposer struct {
	rules []Rule
}

// NewRuleDecomposer creates a decomposer. With no rules, DefaultRules
// apply.
func NewRuleDecomposer(rules ...Rule) *RuleDecomposer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleDecomposer{rules: rules}
}

// Decompose builds the task graph for one change. A change matching no
// rule still gets an analysis task and a quality check over it.
func (d *RuleDecomposer) Decompose(change domain.ChangeEvent) (scheduler.GraphSpec, error) {
	input := map[string]string{
		"change_id": change.ID(),
		"kind":      string(change.Kind),
	}
	for k, v := range change.Payload {
		input[k] = v
	}

	spec := scheduler.GraphSpec{
		Tasks: []scheduler.TaskSpec{
			{ID: "analyze", Role: "change-analysis", Input: input},
		},
	}

	var generated []string
	for _, rule := range d.rules {
		ok, err := rule.matches(change)
		if err != nil {
			return scheduler.GraphSpec{}, err
		}
		if !ok {
			continue
		}
		id := "generate-" + rule.Name
		spec.Tasks = append(spec.Tasks, scheduler.TaskSpec{ID: id, Role: rule.Role, Input: input})
		spec.Edges = append(spec.Edges, scheduler.Dependency{From: "analyze", To: id})
		generated = append(generated, id)
	}

	spec.Tasks = append(spec.Tasks, scheduler.TaskSpec{ID: "quality-check", Role: "quality-check", Input: input})
	if len(generated) == 0 {
		spec.Edges = append(spec.Edges, scheduler.Dependency{From: "analyze", To: "quality-check"})
	}
	for _, id := range generated {
		spec.Edges = append(spec.Edges, scheduler.Dependency{From: id, To: "quality-check"})
	}

	return spec, nil
}
