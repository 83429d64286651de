// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/deepresearch/internal/orchestrator"
	"github.com/meshintel/deepresearch/internal/report"
	"github.com/meshintel/deepresearch/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [query...]",
	Short: "Run one research query to completion and print the report",
	Long: `Run executes the full pipeline for a single query and writes the
report when it completes. If the query is ambiguous the clarifying
question is printed; re-run with --answer to supply the missing detail.

With --artifacts-dir the run's intermediate artifacts (plan, findings,
full run state) are exported as YAML alongside the report.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().Int("max-sources", 0, "maximum sources fetched across the run (default 20)")
	runCmd.Flags().Int("max-depth", 0, "maximum plan depth (default 3)")
	runCmd.Flags().String("format", "markdown", "report format: markdown, json, or html")
	runCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	runCmd.Flags().String("answer", "", "answer to a clarifying question from a previous attempt")
	runCmd.Flags().String("artifacts-dir", "", "export plan, findings, and run state as YAML to this directory")
	runCmd.Flags().Bool("durable", false, "checkpoint to the configured SQLite store instead of memory")

	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		return fmt.Errorf("provide a research question")
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	durable, _ := cmd.Flags().GetBool("durable")
	a, err := buildApp(cmd, !durable)
	if err != nil {
		return err
	}
	defer a.close()

	maxSources, _ := cmd.Flags().GetInt("max-sources")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	answer, _ := cmd.Flags().GetString("answer")

	ctx := cmd.Context()
	run, err := a.orch.Start(ctx, query, types.RunConfig{
		MaxSources: maxSources,
		MaxDepth:   maxDepth,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Run %s started\n", run.RunID)

	status, err := waitTerminal(ctx, a, run.RunID, answer)
	if err != nil {
		return err
	}
	if status.Phase == types.PhaseFailed {
		for _, e := range status.Errors {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return fmt.Errorf("run %s failed", run.RunID)
	}

	body, _, err := a.orch.Report(ctx, run.RunID, format)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("artifacts-dir"); dir != "" {
		if err := exportArtifacts(ctx, a, run.RunID, dir); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Artifacts written to %s\n", dir)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err = os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(output, body, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", output)
	return nil
}

// waitTerminal polls the run until it reaches a terminal phase,
// supplying the clarification answer at most once if one was given.
func waitTerminal(ctx context.Context, a *app, runID, answer string) (orchestrator.Status, error) {
	answered := false
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastPhase types.Phase
	for {
		status, err := a.orch.Status(ctx, runID)
		if err != nil {
			return orchestrator.Status{}, err
		}
		if status.Phase != lastPhase {
			fmt.Fprintf(os.Stderr, "  %s (%.0f%%)\n", status.Phase, status.Progress)
			lastPhase = status.Phase
		}

		switch {
		case status.Phase.Terminal():
			return status, nil
		case status.Phase == types.PhaseAwaitingClarification:
			if answer == "" || answered {
				return orchestrator.Status{}, fmt.Errorf(
					"clarification needed: %s\nre-run with --answer to provide it", status.ClarifyingQuestion)
			}
			if err := a.orch.Clarify(ctx, runID, answer); err != nil {
				return orchestrator.Status{}, err
			}
			answered = true
		}

		select {
		case <-ctx.Done():
			return orchestrator.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// exportArtifacts writes the run's plan, findings, and full state as
// YAML files for inspection.
func exportArtifacts(ctx context.Context, a *app, runID, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}

	run, err := a.store.Load(ctx, runID)
	if err != nil {
		return err
	}

	artifacts := map[string]any{
		"plan.yaml":     run.Plan,
		"findings.yaml": run.Findings,
		"report.yaml":   run.Report,
		"run.yaml":      run,
	}
	for name, value := range artifacts {
		data, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}
