// Package render provides terminal output formatting for engine results.
package render

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/dcastillo/docrelay/internal/breaker"
	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/publish"
	"github.com/dcastillo/docrelay/internal/scheduler"
	relstrings "github.com/dcastillo/docrelay/internal/strings"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a renderer. Pretty output is used only on a real terminal.
func New() *Renderer {
	return &Renderer{pretty: term.IsTerminal(int(os.Stdout.Fd()))}
}

// NewPlain creates a renderer that never uses color or glyphs.
func NewPlain() *Renderer {
	return &Renderer{pretty: false}
}

// Run formats a scheduler run result.
func (r *Renderer) Run(res *scheduler.RunResult) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Run %s\n", res.ChangeID))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(&sb, "run %s\n", res.ChangeID)
	}

	ids := make([]string, 0, len(res.Tasks))
	for id := range res.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := res.Tasks[id]
		fmt.Fprintf(&sb, "%s %-24s %s", r.statusMark(string(t.Status)), id, t.Status)
		if t.Error != nil {
			fmt.Fprintf(&sb, "  %s", relstrings.Truncate(relstrings.FirstLine(t.Error.Message), 80))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "status: %s (%.1fs)\n", res.Status, res.Duration.Seconds())
	return sb.String()
}

// Reviews formats a review list.
func (r *Renderer) Reviews(reviews []domain.Review) string {
	if len(reviews) == 0 {
		return "No reviews found"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Reviews\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, rv := range reviews {
		fmt.Fprintf(&sb, "%s %s  %-28s %s", r.statusMark(string(rv.Status)),
			rv.UpdatedAt.Format("01-02 15:04"), rv.Status, rv.ChangeID)
		if rv.Reviewer != "" {
			fmt.Fprintf(&sb, "  (%s)", rv.Reviewer)
		}
		fmt.Fprintf(&sb, "\n    %s\n", rv.ID)
	}
	return sb.String()
}

// Review formats one review with its audit log.
func (r *Renderer) Review(rv *domain.Review) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "review %s\n", rv.ID)
	fmt.Fprintf(&sb, "change: %s  status: %s  confidence: %.2f\n", rv.ChangeID, rv.Status, rv.Confidence)
	if rv.Reviewer != "" {
		fmt.Fprintf(&sb, "reviewer: %s\n", rv.Reviewer)
	}

	if r.pretty {
		sb.WriteString(color.CyanString("Audit log\n"))
	} else {
		sb.WriteString("audit log\n")
	}
	for _, e := range rv.AuditLog {
		fmt.Fprintf(&sb, "  [%s] %s %s", e.Timestamp.Format("15:04:05"), e.Actor, e.Action)
		if e.Note != "" {
			fmt.Fprintf(&sb, ": %s", e.Note)
		}
		sb.WriteString("\n")
	}

	taskIDs := make([]string, 0, len(rv.ChangeSet))
	for id := range rv.ChangeSet {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)
	sb.WriteString("change set:\n")
	for _, id := range taskIDs {
		fmt.Fprintf(&sb, "  %-24s %s\n", id, relstrings.SummarizeMap(rv.ChangeSet[id], 100))
	}

	return sb.String()
}

// Outcomes formats a per-destination publish outcome map.
func (r *Renderer) Outcomes(outcomes map[string]publish.Outcome) string {
	if len(outcomes) == 0 {
		return "No destinations configured"
	}

	dests := make([]string, 0, len(outcomes))
	for d := range outcomes {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	var sb strings.Builder
	for _, d := range dests {
		out := outcomes[d]
		fmt.Fprintf(&sb, "%s %-20s %-12s attempts=%d (%.1fs)", r.statusMark(string(out.Job.Status)),
			d, out.Job.Status, out.Job.Attempts, out.Duration.Seconds())
		if out.Job.LastError != "" {
			fmt.Fprintf(&sb, "  %s", relstrings.Truncate(out.Job.LastError, 80))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Breakers formats circuit breaker snapshots.
func (r *Renderer) Breakers(snaps map[string]breaker.Snapshot) string {
	if len(snaps) == 0 {
		return "No destinations seen"
	}

	dests := make([]string, 0, len(snaps))
	for d := range snaps {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	var sb strings.Builder
	for _, d := range dests {
		s := snaps[d]
		fmt.Fprintf(&sb, "%-20s %-10s failures=%d since %s\n", d, s.State, s.Failures,
			s.LastTransition.Format("15:04:05"))
	}
	return sb.String()
}

func (r *Renderer) statusMark(status string) string {
	if !r.pretty {
		return "-"
	}
	switch status {
	case "succeeded", "approved", "auto_approved", "approved_with_modifications":
		return color.GreenString("✓")
	case "failed", "rejected":
		return color.RedString("✗")
	case "skipped", "circuit_open":
		return color.YellowString("○")
	default:
		return color.HiBlackString("·")
	}
}
