// Package main review workflow commands.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and act on reviews",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			reviews, err := eng.Reviews().List(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Print(rend.Reviews(reviews))
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "max reviews to show")

	showCmd := &cobra.Command{
		Use:   "show <review-id>",
		Short: "Show one review with its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := eng.Reviews().Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(rend.Review(r))
			return nil
		},
	}

	assignCmd := &cobra.Command{
		Use:   "assign <review-id> <reviewer>",
		Short: "Assign a pending review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := eng.Reviews().Assign(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("review %s -> %s (%s)\n", r.ID, r.Status, r.Reviewer)
			return nil
		},
	}

	var (
		actor string
		note  string
		edits []string
	)
	approveCmd := &cobra.Command{
		Use:   "approve <review-id>",
		Short: "Approve an in-review change set",
		Long: `Approve a review. With --edit task:key=value entries the review is
approved with modifications applied to the proposed change set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if len(edits) > 0 {
				parsed, err := parseEdits(edits)
				if err != nil {
					return err
				}
				r, err := eng.Reviews().ApproveWithModifications(ctx, args[0], actor, parsed, note)
				if err != nil {
					return err
				}
				fmt.Printf("review %s -> %s\n", r.ID, r.Status)
				return nil
			}
			r, err := eng.Reviews().Approve(ctx, args[0], actor, note)
			if err != nil {
				return err
			}
			fmt.Printf("review %s -> %s\n", r.ID, r.Status)
			return nil
		},
	}
	approveCmd.Flags().StringVar(&actor, "actor", "cli", "acting reviewer identity")
	approveCmd.Flags().StringVar(&note, "note", "", "audit note")
	approveCmd.Flags().StringArrayVar(&edits, "edit", nil, "modification task:key=value (repeatable)")

	var (
		rejectActor  string
		rejectReason string
	)
	rejectCmd := &cobra.Command{
		Use:   "reject <review-id>",
		Short: "Reject an in-review change set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := eng.Reviews().Reject(context.Background(), args[0], rejectActor, rejectReason)
			if err != nil {
				return err
			}
			fmt.Printf("review %s -> %s\n", r.ID, r.Status)
			return nil
		},
	}
	rejectCmd.Flags().StringVar(&rejectActor, "actor", "cli", "acting reviewer identity")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "rejection reason")

	cmd.AddCommand(listCmd, showCmd, assignCmd, approveCmd, rejectCmd)
	return cmd
}

// parseEdits converts task:key=value strings to per-task edit maps.
func parseEdits(raw []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, e := range raw {
		task, kv, found := strings.Cut(e, ":")
		if !found {
			return nil, fmt.Errorf("bad edit %q, want task:key=value", e)
		}
		k, v, found := strings.Cut(kv, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("bad edit %q, want task:key=value", e)
		}
		if out[task] == nil {
			out[task] = make(map[string]string)
		}
		out[task][k] = v
	}
	return out, nil
}
