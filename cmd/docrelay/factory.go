// Package main reference capabilities and destination adapters for the CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/publish"
)

// registerReferenceCapabilities installs deterministic capabilities so the
// CLI works end to end without an LLM backend. Hosts embedding the engine
// register their own implementations instead.
func registerReferenceCapabilities(reg *capability.Registry) {
	reg.Register("change-analysis", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		keys := make([]string, 0, len(input))
		for k := range input {
			keys = append(keys, k)
		}
		return capability.Result{
			Output: map[string]string{
				"summary":     fmt.Sprintf("change %s touches %d context fields", input["change_id"], len(input)),
				"observation": "analysis complete",
				"fields":      strings.Join(keys, ","),
			},
			Confidence: 0.95,
		}, nil
	}))

	reg.Register("content-generation", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		return capability.Result{
			Output: map[string]string{
				"content":     fmt.Sprintf("# Update for %s\n\nGenerated for kind %s.", input["change_id"], input["kind"]),
				"observation": "draft generated",
			},
			Confidence: 0.92,
		}, nil
	}))

	reg.Register("quality-check", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		return capability.Result{
			Output:     map[string]string{"verdict": "pass", "observation": "checks passed"},
			Confidence: 0.99,
		}, nil
	}))
}

// fileAdapter writes the approved change set as a JSON file under the
// destination's directory. Rewriting the same content makes retries safe.
type fileAdapter struct {
	dir string
}

func (a *fileAdapter) Apply(ctx context.Context, dest string, changeSet publish.ChangeSet) error {
	if err := os.MkdirAll(filepath.Join(a.dir, dest), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(changeSet, "", "  ")
	if err != nil {
		return err
	}

	name := filepath.Join(a.dir, dest, "changeset.json")
	return os.WriteFile(name, data, 0644)
}

// knownSources are the upstream systems the demo routes to the workspace
// destination.
var knownSources = []string{"github", "jira", "slack"}

// registerDestinations wires the reference file destination for every known
// source.
func registerDestinations(pub *publish.Publisher, dataDir string) {
	pub.RegisterAdapter("workspace", &fileAdapter{dir: filepath.Join(dataDir, "out")})
	for _, src := range knownSources {
		pub.Route(src, "workspace")
	}
}
