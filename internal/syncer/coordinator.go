// Package syncer coordinates connectivity, the offline queue, and the
// request executor.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The coordinator processes connectivity transitions, manual retries, and
// probe ticks in a single goroutine. State transitions and queue drains
// never interleave; external callers submit inputs through thread-safe
// methods (SetOnline, RetryNow, Submit).
//
// State machine:
//
//	idle ──start──▶ online ◀──────────┐
//	                  │ online event,  │ drained
//	                  │ retry, probe   │
//	                  ▼                │
//	              draining ────────────┘
//	                  │ halt (retriable failure or connectivity lost)
//	                  ▼
//	              offline ──online event/probe/retry──▶ draining
//
// A connectivity-lost event never cancels an in-flight attempt: the flag
// flips immediately, the current attempt finishes and its outcome is
// applied, and the pass halts before the next action starts.
//
// After every transition and every drain the coordinator publishes a
// Summary into its cell, which derived cells (system status, "can check
// in", "pending sync") consume.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foyerhq/foyer/internal/cell"
	"github.com/foyerhq/foyer/internal/queue"
	"github.com/foyerhq/foyer/internal/request"
	"github.com/foyerhq/foyer/internal/telemetry"
)

// State is the coordinator's lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateOnline   State = "online"
	StateOffline  State = "offline"
	StateDraining State = "draining"
)

// Connectivity is the value of the connectivity cell.
type Connectivity struct {
	Online         bool
	LastTransition time.Time
}

// Summary is the value of the coordinator's summary cell.
type Summary struct {
	State       State
	QueueLength int
	LastSyncAt  time.Time
	LastError   string
}

// Config holds the coordinator's tunables.
type Config struct {
	// ProbeInterval triggers a drain attempt while actions are pending
	// even without a connectivity event. Zero disables probing (tests).
	ProbeInterval time.Duration
}

// Coordinator owns the drain loop. Create with New, start with Run.
type Coordinator struct {
	cfg     Config
	cells   *cell.Store
	queue   *queue.Queue
	exec    *request.Executor
	sched   request.Scheduler
	metrics *telemetry.Metrics

	events *eventQueue

	// online mirrors the latest connectivity signal. Written by SetOnline
	// from any goroutine; checked between drain attempts so a lost signal
	// stops the pass without cancelling the in-flight attempt.
	online atomic.Bool

	// state is owned by the Run goroutine.
	state State

	connCell    *cell.Cell
	summaryCell *cell.Cell
}

// New creates a Coordinator and registers its connectivity and summary
// cells on cells. The host environment may never deliver a connectivity
// signal; the coordinator starts with an optimistic online assumption and
// degrades to offline when drains halt on retriable failures.
func New(cfg Config, cells *cell.Store, q *queue.Queue, exec *request.Executor, sched request.Scheduler, metrics *telemetry.Metrics) *Coordinator {
	if sched == nil {
		sched = request.RealScheduler()
	}
	c := &Coordinator{
		cfg:     cfg,
		cells:   cells,
		queue:   q,
		exec:    exec,
		sched:   sched,
		metrics: metrics,
		events:  newEventQueue(),
		state:   StateIdle,
	}
	c.online.Store(true)
	c.connCell = cells.NewCell("connectivity", Connectivity{Online: true, LastTransition: sched.Now()})
	c.summaryCell = cells.NewCell("sync-summary", Summary{State: StateIdle})
	return c
}

// ConnectivityCell returns the primitive cell holding Connectivity.
func (c *Coordinator) ConnectivityCell() *cell.Cell { return c.connCell }

// SummaryCell returns the primitive cell holding Summary.
func (c *Coordinator) SummaryCell() *cell.Cell { return c.summaryCell }

// SetOnline feeds a host connectivity transition to the coordinator.
// Thread-safe; may be called from any goroutine.
func (c *Coordinator) SetOnline(online bool) {
	c.online.Store(online)
	c.events.Enqueue(event{kind: evConnectivity, online: online})
}

// RetryNow forces a drain attempt without a connectivity transition.
// Thread-safe; may be called from any goroutine.
func (c *Coordinator) RetryNow() {
	// A manual retry is the user asserting the network is back.
	c.online.Store(true)
	c.events.Enqueue(event{kind: evRetryNow})
}

// Run starts the coordinator loop. Blocks until ctx is cancelled or Stop
// is called. Must be called from exactly one goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("sync coordinator starting")

	// Optimistic-online startup: anything queued from a previous session
	// is drained immediately.
	c.transition(ctx, StateOnline, "")
	if n, err := c.queue.Len(ctx); err == nil && n > 0 {
		c.drain(ctx)
	}

	var probeC <-chan time.Time
	if c.cfg.ProbeInterval > 0 {
		ticker := time.NewTicker(c.cfg.ProbeInterval)
		defer ticker.Stop()
		probeC = ticker.C
	}

	for {
		ev, ok := c.events.TryDequeue()
		if ok {
			c.handleEvent(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("sync coordinator stopping", "reason", "context cancelled")
			c.events.Close()
			return ctx.Err()

		case <-c.events.Wait():
			// A wakeup can be a stale coalesced token from events already
			// dequeued above. Only closure ends the loop.
			if c.events.Closed() && c.events.Len() == 0 {
				slog.Info("sync coordinator stopping", "reason", "event queue closed")
				return nil
			}

		case <-probeC:
			c.probe(ctx)
		}
	}
}

// Stop gracefully shuts down the coordinator; Run returns after the
// current event finishes.
func (c *Coordinator) Stop() {
	c.events.Close()
}

func (c *Coordinator) handleEvent(ctx context.Context, ev event) {
	switch ev.kind {
	case evConnectivity:
		c.publishConnectivity(ev.online)
		if ev.online {
			slog.Info("connectivity restored")
			c.drain(ctx)
		} else {
			slog.Info("connectivity lost")
			c.transition(ctx, StateOffline, "")
		}

	case evRetryNow:
		slog.Info("manual retry requested")
		c.drain(ctx)
	}
}

// probe fires on the drain interval: retry pending work even without a
// connectivity event, since the host signal may be absent entirely.
func (c *Coordinator) probe(ctx context.Context) {
	n, err := c.queue.Len(ctx)
	if err != nil || n == 0 {
		return
	}
	c.online.Store(true)
	c.drain(ctx)
}

// drain runs one pass over the queue and settles into online or offline.
func (c *Coordinator) drain(ctx context.Context) {
	c.transition(ctx, StateDraining, "")

	res, err := c.queue.Drain(ctx, c.execAction)
	if err != nil {
		slog.Error("drain failed", "error", err)
		c.transition(ctx, StateOffline, err.Error())
		return
	}

	lastErr := ""
	if res.HaltError != nil {
		lastErr = res.HaltError.Error()
	}
	if len(res.Failed) > 0 {
		lastErr = res.Failed[len(res.Failed)-1].LastError
	}

	if res.Halted {
		// A retriable halt means the backend is unreachable: degrade to
		// offline until a connectivity event, probe, or manual retry.
		c.transition(ctx, StateOffline, lastErr)
		return
	}

	c.transitionSynced(ctx, lastErr)

	slog.Info("drain completed",
		"processed", len(res.Processed),
		"failed", len(res.Failed),
		"remaining", res.Remaining,
	)
}

// execAction adapts one queued action into an executor call. Checked
// against the connectivity flag first so a lost signal halts the pass
// between attempts, never mid-attempt.
func (c *Coordinator) execAction(ctx context.Context, a queue.Action) request.Outcome {
	if !c.online.Load() {
		return request.Outcome{
			Err:       request.NewNetworkError("connectivity lost before attempt"),
			Retriable: true,
		}
	}

	method, path, ok := queue.Endpoint(a.Kind)
	if !ok {
		// Enqueue validates kinds; an unknown kind here is a stale row
		// from a newer schema. Terminal so it cannot wedge the queue.
		return request.Outcome{
			Err:       request.NewClientError(0, fmt.Sprintf("unknown action kind %q", a.Kind)),
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

// Submit performs a mutating operation immediately when possible, falling
// back to the queue per the offline contract:
//
//   - offline: enqueue silently, no attempt
//   - online with older actions pending: enqueue and trigger a drain, so
//     the server sees submission order
//   - online, success: outcome returned, nothing queued
//   - online, terminal failure: outcome returned for immediate surfacing,
//     nothing queued (retrying a caller bug cannot succeed)
//   - online, retriable after the executor's budget: enqueue and degrade
//     to offline
//
// The queued return reports whether the action went to the queue.
// Thread-safe; may be called from any goroutine.
func (c *Coordinator) Submit(ctx context.Context, kind string, payload map[string]any) (out request.Outcome, queued bool, err error) {
	if !queue.Known(kind) {
		return request.Outcome{}, false, fmt.Errorf("submit: unknown action kind %q", kind)
	}

	// Persist first: the action survives a crash between here and the
	// server confirming it. Confirmed or rejected actions are removed
	// before returning.
	a, err := c.queue.Enqueue(ctx, kind, payload)
	if err != nil {
		return request.Outcome{}, false, err
	}

	if !c.online.Load() {
		c.publishQueueLength(ctx)
		return request.Outcome{}, true, nil
	}

	// Older actions pending means an immediate attempt would reach the
	// server out of order. Leave it queued and let a drain replay it.
	if head, err := c.queue.Peek(ctx); err == nil && head.Seq != a.Seq {
		c.publishQueueLength(ctx)
		c.events.Enqueue(event{kind: evRetryNow})
		return request.Outcome{}, true, nil
	}

	out = c.execAction(ctx, a)
	switch {
	case out.OK:
		if err := c.queue.Remove(ctx, a.Seq); err != nil {
			return out, false, fmt.Errorf("submit: remove confirmed action: %w", err)
		}
		return out, false, nil

	case !out.Retriable:
		if err := c.queue.Remove(ctx, a.Seq); err != nil {
			return out, false, fmt.Errorf("submit: remove rejected action: %w", err)
		}
		return out, false, nil

	default:
		// Stays queued for replay. Repeated retriable failures are the
		// offline classification when no host signal exists.
		c.SetOnline(false)
		c.publishQueueLength(ctx)
		return out, true, nil
	}
}

// transition publishes a state change and the current queue length.
func (c *Coordinator) transition(ctx context.Context, next State, lastErr string) {
	c.state = next
	n, _ := c.queue.Len(ctx)
	c.cells.Update(c.summaryCell, func(old any) any {
		s := old.(Summary)
		s.State = next
		s.QueueLength = n
		s.LastError = lastErr
		return s
	})
	c.metrics.SetQueueDepth(n)
}

// transitionSynced marks a fully drained pass: state online with a fresh
// LastSyncAt.
func (c *Coordinator) transitionSynced(ctx context.Context, lastErr string) {
	c.state = StateOnline
	n, _ := c.queue.Len(ctx)
	now := c.sched.Now()
	c.cells.Update(c.summaryCell, func(old any) any {
		s := old.(Summary)
		s.State = StateOnline
		s.QueueLength = n
		s.LastSyncAt = now
		s.LastError = lastErr
		return s
	})
	c.metrics.SetQueueDepth(n)
}

func (c *Coordinator) publishConnectivity(online bool) {
	c.cells.Set(c.connCell, Connectivity{
		Online:         online,
		LastTransition: c.sched.Now(),
	})
}

func (c *Coordinator) publishQueueLength(ctx context.Context) {
	n, _ := c.queue.Len(ctx)
	c.cells.Update(c.summaryCell, func(old any) any {
		s := old.(Summary)
		s.QueueLength = n
		return s
	})
}

// State returns the coordinator's current phase as last published.
// Reads the summary cell, so it is safe from any goroutine.
func (c *Coordinator) State() State {
	return c.cells.Get(c.summaryCell).(Summary).State
}
