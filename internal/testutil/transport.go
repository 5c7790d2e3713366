package testutil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Step is one scripted transport response. Exactly one of Err or Status
// should be set; Err simulates a transport-level failure (no response).
type Step struct {
	Err    error
	Status int
	Body   string
}

// Call records one transport invocation made against a ScriptedTransport.
type Call struct {
	Method string
	Path   string
	Body   string
}

// ScriptedTransport implements request.Doer with a fixed response script.
//
// Each Do call consumes the next step and records the request, so tests
// can assert both on the classification path taken and on the exact order
// of transport invocations.
//
// Panics when the script is exhausted. This is a fail-fast approach to
// catch test misconfiguration (the code under test made more attempts than
// the scenario expected).
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedTransport struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// NewScriptedTransport creates a transport that replies with steps in order.
func NewScriptedTransport(steps ...Step) *ScriptedTransport {
	return &ScriptedTransport{steps: steps}
}

// Append adds steps to the end of the script.
func (t *ScriptedTransport) Append(steps ...Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, steps...)
}

// Do consumes the next scripted step.
func (t *ScriptedTransport) Do(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err == nil {
			body = string(data)
		}
	}
	t.calls = append(t.calls, Call{
		Method: req.Method,
		Path:   req.URL.Path,
		Body:   body,
	})

	if len(t.steps) == 0 {
		panic(fmt.Sprintf("ScriptedTransport: script exhausted at call %d (%s %s)",
			len(t.calls), req.Method, req.URL.Path))
	}
	step := t.steps[0]
	t.steps = t.steps[1:]

	if step.Err != nil {
		return nil, step.Err
	}
	return &http.Response{
		StatusCode: step.Status,
		Body:       io.NopCloser(strings.NewReader(step.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Calls returns a copy of every recorded invocation, in order.
func (t *ScriptedTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallPaths returns just the request paths, in invocation order.
func (t *ScriptedTransport) CallPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.Path
	}
	return out
}
