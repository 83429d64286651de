// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research pipeline over HTTP",
	Long: `Serve starts the HTTP control API. Runs are submitted with
POST /research and polled with GET /research/{run_id}; completed reports
are available in markdown, JSON, or HTML.

On startup every non-terminal checkpointed run is resumed from its last
completed phase.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.orch.ResumeAll(ctx); err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	a.logger.Info("starting",
		zap.String("version", version),
		zap.Int("providers", len(a.backends)),
		zap.String("checkpoint_db", a.cfg.Checkpoint.Path))

	server := httpapi.NewServer(a.orch, a.backends, a.logger)
	return server.Start(ctx, addr)
}
