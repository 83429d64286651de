// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshintel/deepresearch/internal/checkpoint"
	"github.com/meshintel/deepresearch/internal/report"
	"github.com/meshintel/deepresearch/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Re-render the report of a completed run",
	Long: `Report loads a completed run from the checkpoint store and renders its
report in the requested format. The run must have been executed with
durable checkpointing (serve, or run --durable).`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("format", "markdown", "report format: markdown, json, or html")
	reportCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	path := viper.GetString("checkpoint.path")
	if path == "" {
		path = "deepresearch.db"
	}
	store, err := checkpoint.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}
	if run.CurrentPhase != types.PhaseDone || run.Report == nil {
		return fmt.Errorf("run %s is in phase %s; only completed runs have reports", run.RunID, run.CurrentPhase)
	}

	body, _, err := report.Render(run.Report, format)
	if err != nil {
		return err
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
