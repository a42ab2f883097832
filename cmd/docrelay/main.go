// Package main provides the docrelay CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcastillo/docrelay/internal/breaker"
	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/config"
	"github.com/dcastillo/docrelay/internal/decompose"
	"github.com/dcastillo/docrelay/internal/engine"
	"github.com/dcastillo/docrelay/internal/publish"
	"github.com/dcastillo/docrelay/internal/render"
	"github.com/dcastillo/docrelay/internal/review"
	"github.com/dcastillo/docrelay/internal/scheduler"
	"github.com/dcastillo/docrelay/internal/store"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

var (
	version = "0.1.0"

	db   *store.SQLite
	eng  *engine.Engine
	brk  *breaker.Registry
	rend *render.Renderer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docrelay",
		Short: "Change orchestration engine for documentation pipelines",
		Long: `docrelay drives upstream change events through automated content
generation, human review, and fan-out publication.

Flow: change -> task graph -> review -> publish.

Use 'docrelay run' to process a change, 'docrelay review' to act on the
resulting review, and 'docrelay publish' to release an approved one.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("docrelay", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup wires the engine from environment configuration. Capabilities and
// destination adapters here are the reference implementations; real hosts
// register their own.
func setup() error {
	cfg := config.Get()
	paths := config.GetPaths()
	rend = render.New()

	var err error
	db, err = store.Open(paths.Data)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	sink := telemetry.NewLogSink("docrelay")

	brk = breaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown, breaker.WithSink(sink))

	reg := capability.NewRegistry()
	registerReferenceCapabilities(reg)

	sched := scheduler.New(reg, nil, scheduler.WithSink(sink))

	reviews := review.NewManager(db,
		review.WithAutoApprove(review.ConfidenceAbove(cfg.AutoApproveThreshold)),
		review.WithSink(sink),
	)

	pub := publish.New(brk, publish.WithSink(sink))
	registerDestinations(pub, paths.Data)

	eng = engine.New(decompose.NewRuleDecomposer(), sched, reviews, pub,
		engine.WithRunLog(db), engine.WithSink(sink))
	return nil
}
