// Package main change processing commands.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcastillo/docrelay/internal/domain"
)

func runCmd() *cobra.Command {
	var (
		source    string
		kind      string
		artifacts []string
		payload   []string
		timeout   int
	)

	cmd := &cobra.Command{
		Use:   "run <external-id>",
		Short: "Process a change event through the engine",
		Long: `Decompose a change into a task graph, execute it, and open a review
over the proposed change set.

Examples:
  docrelay run PR-142 --source github --kind push --artifact api/users.go
  docrelay run TICKET-9 --source jira --kind issue_closed --payload priority=high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
			defer cancel()

			change := domain.ChangeEvent{
				Source:     source,
				ExternalID: args[0],
				Kind:       domain.ClassifyChange(kind),
				Payload:    parsePayload(payload, artifacts),
				ReceivedAt: time.Now().UTC(),
			}

			res, err := eng.Process(ctx, change)
			if err != nil {
				return err
			}

			fmt.Print(rend.Run(res.Run))
			if res.Review == nil {
				fmt.Println("no reviewable output; no review opened")
				return nil
			}

			fmt.Printf("review %s opened (%s)\n", res.Review.ID, res.Review.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "github", "source system of the change")
	cmd.Flags().StringVar(&kind, "kind", "push", "raw kind tag from the source system")
	cmd.Flags().StringArrayVar(&artifacts, "artifact", nil, "affected artifact path (repeatable)")
	cmd.Flags().StringArrayVar(&payload, "payload", nil, "context entry key=value (repeatable)")
	cmd.Flags().IntVar(&timeout, "timeout", 300, "overall run timeout in seconds")
	return cmd
}

// parsePayload folds key=value pairs and artifact paths into the change
// payload map.
func parsePayload(pairs, artifacts []string) map[string]string {
	out := make(map[string]string, len(pairs)+1)
	for _, p := range pairs {
		k, v, found := strings.Cut(p, "=")
		if !found || k == "" {
			continue
		}
		out[k] = v
	}
	if len(artifacts) > 0 {
		out["artifacts"] = strings.Join(artifacts, "\n")
	}
	return out
}
