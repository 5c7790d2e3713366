package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/cell"
	"github.com/foyerhq/foyer/internal/syncer"
	"github.com/foyerhq/foyer/internal/telemetry"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the kiosk sync agent",
		Long: `Start the sync agent: open the durable queue, drain anything left
from a previous session, and keep replaying queued actions as
connectivity allows. Runs until interrupted.

Example:
  foyer run --config /etc/foyer/foyer.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(rootOpts, cmd)
		},
	}
}

func runAgent(opts *RootOptions, cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	c, err := openComponents(opts, metrics)
	if err != nil {
		return err
	}
	defer c.Close()

	cells := cell.NewStore()
	coord := syncer.New(syncer.Config{
		ProbeInterval: c.cfg.Sync.ProbeInterval.Std(),
	}, cells, c.queue, c.exec, nil, metrics)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if addr := c.cfg.Metrics.Listen; addr != "" {
		srv := serveMetrics(addr, reg)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Agent started. Press Ctrl-C to stop.")

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "agent error", err)
	}

	slog.Info("agent stopped gracefully")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}
