// Package request performs single network operations against the kiosk
// backend: one attempt with a timeout, classification of the result, and
// retry with jittered exponential backoff for retriable classifications.
//
// The executor never panics and never returns a raw error from Execute:
// every call folds into an Outcome whose Err (if any) carries a
// classification code. Whether a failed mutating request is queued for
// offline replay is the caller's decision - the executor only classifies.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foyerhq/foyer/internal/telemetry"
)

// Defaults for the retry policy. All overridable through Config.
const (
	DefaultTimeout           = 10 * time.Second
	DefaultMaxAttempts       = 3 // 1 initial + 2 retries
	DefaultBackoffBase       = 500 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Doer issues a single HTTP request. *http.Client satisfies it; tests use
// a scripted implementation.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the executor's tunables.
type Config struct {
	// BaseURL is prefixed to every request path.
	BaseURL string

	// Timeout bounds each individual attempt. Default 10s.
	Timeout time.Duration

	// MaxAttempts is the total attempt budget per Execute call, including
	// the first. Default 3.
	MaxAttempts int

	// BackoffBase is the delay before the first retry. Default 500ms.
	BackoffBase time.Duration

	// BackoffMultiplier doubles (by default) the delay per retry.
	BackoffMultiplier float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return c
}

// Request describes one network operation.
type Request struct {
	Method string
	Path   string

	// Body is the JSON payload for mutating requests, nil for reads.
	Body json.RawMessage

	// IdempotencyKey, when set, is sent as the Idempotency-Key header so
	// at-least-once replay has no duplicate effect server-side.
	IdempotencyKey string

	// Timeout overrides Config.Timeout for this request when positive.
	Timeout time.Duration
}

// Outcome is the transient result of an Execute call. It is never
// persisted; callers fold it into cell state or queue decisions.
type Outcome struct {
	// OK is true for a 2xx response.
	OK bool

	// Status is the HTTP status of the last attempt, 0 if none answered.
	Status int

	// Data is the response body of a successful attempt.
	Data json.RawMessage

	// Err classifies the failure when OK is false.
	Err *Error

	// Retriable reports whether the failure may succeed later. Always
	// false when OK is true.
	Retriable bool

	// Attempts is how many transport invocations this call consumed.
	Attempts int
}

// Executor runs requests with retry. Safe for concurrent use.
type Executor struct {
	cfg       Config
	transport Doer
	sched     Scheduler
	metrics   *telemetry.Metrics
}

// New creates an Executor. transport defaults to http.DefaultClient and
// sched to the wall-clock scheduler when nil; metrics may be nil.
func New(cfg Config, transport Doer, sched Scheduler, metrics *telemetry.Metrics) *Executor {
	if transport == nil {
		transport = http.DefaultClient
	}
	if sched == nil {
		sched = RealScheduler()
	}
	return &Executor{
		cfg:       cfg.withDefaults(),
		transport: transport,
		sched:     sched,
		metrics:   metrics,
	}
}

// Execute runs the request to completion: up to MaxAttempts transport
// invocations with backoff between retriable failures, short-circuiting
// on success or on a terminal classification.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	bo := newBackoff(e.cfg.BackoffBase, e.cfg.BackoffMultiplier)

	var out Outcome
	for attempt := 1; ; attempt++ {
		out = e.attempt(ctx, req)
		out.Attempts = attempt
		e.metrics.RequestAttempt(req.Method)

		if out.OK {
			e.metrics.RequestOutcome("ok")
			return out
		}
		if !out.Retriable {
			e.metrics.RequestOutcome(string(out.Err.Code))
			return out
		}
		if attempt >= e.cfg.MaxAttempts {
			e.metrics.RequestOutcome(string(out.Err.Code))
			return out
		}

		delay := bo.Next()
		slog.Debug("request retrying",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt,
			"delay", delay,
			"error", out.Err,
		)
		if err := e.sched.Sleep(ctx, delay); err != nil {
			// Caller gave up while we were backing off. Report the last
			// classification; it is still retriable for queueing purposes.
			out.Attempts = attempt
			return out
		}
	}
}

// attempt performs a single transport invocation and classifies it.
func (e *Executor) attempt(ctx context.Context, req Request) Outcome {
	timeout := e.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	url := strings.TrimSuffix(e.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		// Malformed method or URL is the caller's bug, not a network condition.
		return Outcome{
			Status:    0,
			Err:       NewClientError(0, fmt.Sprintf("build request: %v", err)),
			Retriable: false,
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := e.transport.Do(httpReq)
	if err != nil {
		// No response: unreachable, connection reset, or timeout. A
		// timed-out attempt is treated identically to a network failure.
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("attempt timed out after %s", timeout)
		}
		return Outcome{
			Err:       NewNetworkError(msg),
			Retriable: true,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{
			Status:    resp.StatusCode,
			Err:       NewNetworkError(fmt.Sprintf("read response body: %v", err)),
			Retriable: true,
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{OK: true, Status: resp.StatusCode, Data: data}

	case resp.StatusCode >= 500:
		return Outcome{
			Status:    resp.StatusCode,
			Err:       NewServerError(resp.StatusCode, bodySnippet(data)),
			Retriable: true,
		}

	default:
		// 4xx, and anything else the backend should never send (3xx with
		// redirects disabled, 1xx): the request is wrong as issued.
		return Outcome{
			Status:    resp.StatusCode,
			Err:       NewClientError(resp.StatusCode, bodySnippet(data)),
			Retriable: false,
		}
	}
}

// bodySnippet truncates an error body for messages and logs.
func bodySnippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "(empty body)"
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
