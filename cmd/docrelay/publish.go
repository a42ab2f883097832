// Package main publication and status commands.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "publish <review-id>",
		Short: "Publish an approved review to all configured destinations",
		Long: `Fan the approved change set out to every destination configured for
the review's change source. Destinations fail independently; inspect the
per-destination outcomes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
			defer cancel()

			outcomes, err := eng.Release(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(rend.Outcomes(outcomes))
			return nil
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 300, "overall publish timeout in seconds")
	return cmd
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show breaker state and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("circuit breakers:")
			fmt.Print(rend.Breakers(brk.All()))

			runs, err := db.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Println("recent runs:")
			if len(runs) == 0 {
				fmt.Println("  none")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("  %s  %-10s %d tasks  %dms\n",
					r.CreatedAt.Format("01-02 15:04"), r.Status, len(r.TaskStatus), r.DurationMs)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max runs to show")
	return cmd
}
