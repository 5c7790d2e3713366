// Package queue implements the durable offline action queue.
//
// The queue is the single source of truth for pending mutations. Actions
// are persisted before Enqueue returns, survive process restart, and are
// replayed in strict enqueue order. Only the sync coordinator drains, and
// only the queue itself removes entries - no other component touches the
// rows.
//
// Drain policy: a retriable failure leaves the action in place and HALTS
// the pass. Skipping ahead would let a newer action reach the server
// before an older one (update-before-create), which is exactly the
// reordering the queue exists to prevent. A terminal (4xx) failure removes
// the action and continues - nothing behind it is waiting on its effect
// being retried.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/canon"
	"github.com/foyerhq/foyer/internal/request"
	"github.com/foyerhq/foyer/internal/store"
	"github.com/foyerhq/foyer/internal/telemetry"
)

// Action is a persisted pending mutation. See store.Action.
type Action = store.Action

// ErrQueueSaturated is returned by Enqueue when the queue is at its
// configured maximum and no displacement victim exists.
var ErrQueueSaturated = errors.New("queue saturated")

// DefaultMaxPending bounds the queue. A kiosk accumulating more pending
// mutations than this has been offline far beyond its design envelope.
const DefaultMaxPending = 500

// DefaultMaxAttempts is how many drain-cycle failures an action survives
// before moving to the dead-letter set.
const DefaultMaxAttempts = 8

// RefGenerator produces stable local identifiers for actions created
// before a server id exists. Implemented by UUIDv7Generator (production)
// and testutil.FixedRefGenerator (tests).
type RefGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 local references.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Options configures a Queue. Zero values take the defaults above.
type Options struct {
	MaxPending  int
	MaxAttempts int
	Refs        RefGenerator
	Now         func() time.Time
	Metrics     *telemetry.Metrics
}

// Queue wraps the durable store with enqueue/drain semantics.
//
// Thread-safety: Enqueue is safe from any goroutine. At most one Drain
// runs at a time; a second concurrent call blocks until the first pass
// finishes.
type Queue struct {
	st      *store.Store
	opts    Options
	drainMu sync.Mutex
}

// Open creates a Queue over an opened store.
func Open(st *store.Store, opts Options) *Queue {
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Refs == nil {
		opts.Refs = UUIDv7Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{st: st, opts: opts}
}

// Enqueue persists a mutating action for later replay and returns the
// stored row.
//
// The idempotency key is derived from the kind plus a canonical hash of
// the payload, so re-enqueuing the same logical action replaces the
// payload of the existing entry and keeps its queue position instead of
// creating a second entry.
//
// Saturation policy (explicit by design): when the queue is at
// MaxPending, a critical action (visitor mutations, notifications)
// displaces the oldest non-critical pending action (analytics, health);
// if no such victim exists, or the new action is itself non-critical,
// Enqueue fails with ErrQueueSaturated and the caller surfaces it.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload map[string]any) (Action, error) {
	if !Known(kind) {
		return Action{}, fmt.Errorf("enqueue: unknown action kind %q", kind)
	}

	key, err := canon.Key(kind, payload)
	if err != nil {
		return Action{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("enqueue %s: marshal payload: %w", kind, err)
	}

	stored, inserted, err := q.st.UpsertAction(ctx, Action{
		LocalRef:       q.opts.Refs.Generate(),
		Kind:           kind,
		Payload:        body,
		IdempotencyKey: key,
		CreatedAt:      q.opts.Now(),
	})
	if err != nil {
		return Action{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	if inserted {
		if err := q.enforceSaturation(ctx, stored); err != nil {
			return Action{}, err
		}
	}

	q.publishDepth(ctx)
	slog.Debug("action enqueued",
		"kind", kind,
		"seq", stored.Seq,
		"local_ref", stored.LocalRef,
		"deduped", !inserted,
	)
	return stored, nil
}

// enforceSaturation applies the displacement policy after a fresh insert
// pushed the queue over MaxPending.
func (q *Queue) enforceSaturation(ctx context.Context, inserted Action) error {
	n, err := q.st.CountActions(ctx)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", inserted.Kind, err)
	}
	if n <= q.opts.MaxPending {
		return nil
	}

	if Critical(inserted.Kind) {
		victim, err := q.st.OldestActionOfKinds(ctx, nonCriticalKinds...)
		if err == nil && victim.Seq != inserted.Seq {
			if err := q.st.DeleteAction(ctx, victim.Seq); err != nil {
				return fmt.Errorf("enqueue %s: displace victim: %w", inserted.Kind, err)
			}
			slog.Warn("queue saturated, dropped oldest non-critical action",
				"dropped_kind", victim.Kind,
				"dropped_seq", victim.Seq,
				"for_kind", inserted.Kind,
			)
			return nil
		}
	}

	// No victim available: reject the new entry.
	if err := q.st.DeleteAction(ctx, inserted.Seq); err != nil {
		return fmt.Errorf("enqueue %s: rollback saturated insert: %w", inserted.Kind, err)
	}
	return fmt.Errorf("enqueue %s: %w (max %d pending)", inserted.Kind, ErrQueueSaturated, q.opts.MaxPending)
}

// ExecFunc attempts one queued action against the backend. Supplied by the
// sync coordinator, backed by the request executor.
type ExecFunc func(ctx context.Context, a Action) request.Outcome

// DrainResult reports one drain pass.
type DrainResult struct {
	// Processed lists actions confirmed by the server, in replay order.
	Processed []Action

	// Failed lists actions removed after a terminal classification. The
	// caller must surface these; they will not be retried.
	Failed []Action

	// Halted is true when a retriable failure stopped the pass with
	// actions still pending.
	Halted bool

	// HaltError is the classification that halted the pass.
	HaltError *request.Error

	// Remaining is the queue length after the pass.
	Remaining int
}

// Drain attempts every pending action in strict queue order, one in
// flight at a time.
//
// Per action: success removes it; a terminal failure removes it and
// records it in Failed; a retriable failure increments its attempt count
// (dead-lettering at the cap) and halts the pass. Context cancellation
// also halts, leaving the current action in place.
func (q *Queue) Drain(ctx context.Context, exec ExecFunc) (res DrainResult, err error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	// Named result: the deferred count must land in the value actually
	// returned. Counting survives a cancelled ctx so a halted pass still
	// reports how much is left.
	defer func() {
		if n, cntErr := q.st.CountActions(context.WithoutCancel(ctx)); cntErr == nil {
			res.Remaining = n
			q.opts.Metrics.SetQueueDepth(n)
		}
	}()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Halted = true
			res.HaltError = request.NewNetworkError("drain cancelled: " + ctxErr.Error())
			q.opts.Metrics.Drain("cancelled")
			return res, nil
		}

		a, err := q.st.NextAction(ctx)
		if errors.Is(err, store.ErrNotFound) {
			q.opts.Metrics.Drain("drained")
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("drain: %w", err)
		}

		out := exec(ctx, a)
		switch {
		case out.OK:
			if err := q.st.DeleteAction(ctx, a.Seq); err != nil {
				return res, fmt.Errorf("drain: remove processed action %d: %w", a.Seq, err)
			}
			res.Processed = append(res.Processed, a)
			slog.Info("queued action replayed",
				"kind", a.Kind,
				"seq", a.Seq,
				"attempts", out.Attempts,
			)

		case !out.Retriable:
			if err := q.st.DeleteAction(ctx, a.Seq); err != nil {
				return res, fmt.Errorf("drain: remove failed action %d: %w", a.Seq, err)
			}
			a.LastError = out.Err.Error()
			res.Failed = append(res.Failed, a)
			slog.Warn("queued action rejected by server",
				"kind", a.Kind,
				"seq", a.Seq,
				"error", out.Err,
			)

		default:
			attempts, err := q.st.RecordFailure(ctx, a.Seq, out.Err.Error())
			if err != nil {
				return res, fmt.Errorf("drain: record failure for action %d: %w", a.Seq, err)
			}
			if attempts >= q.opts.MaxAttempts {
				if err := q.st.MoveToDeadLetter(ctx, a.Seq, q.opts.Now()); err != nil {
					return res, fmt.Errorf("drain: dead-letter action %d: %w", a.Seq, err)
				}
				q.opts.Metrics.DeadLetter()
				slog.Error("action dead-lettered after exhausting attempts",
					"kind", a.Kind,
					"seq", a.Seq,
					"attempts", attempts,
					"error", out.Err,
				)
				// The action is out of the queue; the remainder keeps its
				// relative order, so the pass may continue.
				continue
			}

			// Halt: processing newer actions would break replay order.
			res.Halted = true
			res.HaltError = out.Err
			q.opts.Metrics.Drain("halted")
			slog.Info("drain halted on retriable failure",
				"kind", a.Kind,
				"seq", a.Seq,
				"attempts", attempts,
				"error", out.Err,
			)
			return res, nil
		}
	}
}

// Peek returns the oldest pending action without removing it.
func (q *Queue) Peek(ctx context.Context) (Action, error) {
	return q.st.NextAction(ctx)
}

// Remove deletes a pending action by queue position.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	if err := q.st.DeleteAction(ctx, seq); err != nil {
		return err
	}
	q.publishDepth(ctx)
	return nil
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.st.CountActions(ctx)
}

// List returns every pending action in queue order.
func (q *Queue) List(ctx context.Context) ([]Action, error) {
	return q.st.ListActions(ctx)
}

// DeadLetters returns actions that exhausted their attempt budget.
func (q *Queue) DeadLetters(ctx context.Context) ([]Action, error) {
	return q.st.ListDeadLetters(ctx)
}

func (q *Queue) publishDepth(ctx context.Context) {
	if n, err := q.st.CountActions(ctx); err == nil {
		q.opts.Metrics.SetQueueDepth(n)
	}
}
