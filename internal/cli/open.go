package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/queue"
	"github.com/foyerhq/foyer/internal/request"
	"github.com/foyerhq/foyer/internal/store"
	"github.com/foyerhq/foyer/internal/telemetry"
)

// components bundles the pieces every command needs: the durable store,
// the queue over it, and the request executor for the configured backend.
type components struct {
	cfg   config.Config
	store *store.Store
	queue *queue.Queue
	exec  *request.Executor
}

// openComponents loads the config file and wires the stack. metrics may be
// nil for one-shot commands.
func openComponents(opts *RootOptions, metrics *telemetry.Metrics) (*components, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	setupLogging(cfg.Log, opts.Verbose)

	st, err := store.Open(cfg.Queue.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open queue database", err)
	}

	q := queue.Open(st, queue.Options{
		MaxPending:  cfg.Queue.MaxPending,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Metrics:     metrics,
	})

	exec := request.New(request.Config{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Backend.Timeout.Std(),
		MaxAttempts:       cfg.Backend.MaxAttempts,
		BackoffBase:       cfg.Backend.BackoffBase.Std(),
		BackoffMultiplier: cfg.Backend.BackoffMultiplier,
	}, nil, nil, metrics)

	return &components{cfg: cfg, store: st, queue: q, exec: exec}, nil
}

func (c *components) Close() {
	if err := c.store.Close(); err != nil {
		slog.Error("closing queue database", "error", err)
	}
}

// setupLogging configures the process-wide slog default from the config,
// with --verbose forcing debug level.
func setupLogging(cfg config.LogSettings, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	ho := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, ho)
	} else {
		handler = slog.NewTextHandler(os.Stderr, ho)
	}
	slog.SetDefault(slog.New(handler))
}

// execFunc adapts a queued action into an executor call using the kind's
// endpoint. The coordinator has its own version that also consults the
// connectivity flag; one-shot commands replay unconditionally.
func (c *components) execFunc() queue.ExecFunc {
	return func(ctx context.Context, a queue.Action) request.Outcome {
		method, path, ok := queue.Endpoint(a.Kind)
		if !ok {
			return request.Outcome{
				Err:       request.NewClientError(0, "unknown action kind "+a.Kind),
				Retriable: false,
			}
		}
		return c.exec.Execute(ctx, request.Request{
			Method:         method,
			Path:           path,
			Body:           a.Payload,
			IdempotencyKey: a.IdempotencyKey,
		})
	}
}
