package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foyerhq/foyer/internal/queue"
	"github.com/foyerhq/foyer/internal/store"
	"github.com/foyerhq/foyer/internal/testutil"
)

// writeConfigFile creates a minimal config pointing at baseURL and dbPath.
// The attempt budget is 1 so failure tests do not sleep through backoff.
func writeConfigFile(t *testing.T, dir, baseURL, dbPath string) string {
	t.Helper()
	path := filepath.Join(dir, "foyer.yaml")
	doc := fmt.Sprintf("backend:\n  base_url: %s\n  max_attempts: 1\nqueue:\n  path: %s\n", baseURL, dbPath)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func seedQueue(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	q := queue.Open(st, queue.Options{
		Refs: testutil.NewFixedRefGenerator("ref-1", "ref-2", "ref-3"),
		Now: func() time.Time {
			n++
			return base.Add(time.Duration(n) * time.Second)
		},
	})

	_, err = q.Enqueue(ctx, queue.KindVisitorCreate, map[string]any{"name": "Jane"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.KindNotifyHost, map[string]any{"host": "Sam"})
	require.NoError(t, err)

	// One exhausted analytics event in the dead-letter set.
	dead, err := q.Enqueue(ctx, queue.KindAnalyticsEvent, map[string]any{"event": "scan"})
	require.NoError(t, err)
	_, err = st.RecordFailure(ctx, dead.Seq, "NETWORK: connection refused")
	require.NoError(t, err)
	_, err = st.RecordFailure(ctx, dead.Seq, "NETWORK: connection refused")
	require.NoError(t, err)
	require.NoError(t, st.MoveToDeadLetter(ctx, dead.Seq, base.Add(10*time.Second)))
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	_, err := runCommand(t, "queue", "--format", "xml")
	assert.Error(t, err)
}

func TestQueueCommand_GoldenListing(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	cfg := writeConfigFile(t, dir, "http://localhost:0", dbPath)
	seedQueue(t, dbPath)

	out, err := runCommand(t, "queue", "--config", cfg)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "queue_list", []byte(out))
}

func TestQueueCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	cfg := writeConfigFile(t, dir, "http://localhost:0", dbPath)
	seedQueue(t, dbPath)

	out, err := runCommand(t, "queue", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   queueView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Pending, 2)
	assert.Equal(t, "visitor.create", resp.Data.Pending[0].Kind)
	require.Len(t, resp.Data.DeadLetters, 1)
	assert.Equal(t, 2, resp.Data.DeadLetters[0].Attempts)
}

func TestQueueCommand_MissingConfig(t *testing.T) {
	_, err := runCommand(t, "queue", "--config", "/nonexistent/foyer.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncCommand_ReplaysPendingActions(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	cfg := writeConfigFile(t, dir, srv.URL, dbPath)

	func() {
		st, err := store.Open(dbPath)
		require.NoError(t, err)
		defer st.Close()
		q := queue.Open(st, queue.Options{})
		_, err = q.Enqueue(context.Background(), queue.KindVisitorCreate, map[string]any{"name": "Jane"})
		require.NoError(t, err)
		_, err = q.Enqueue(context.Background(), queue.KindNotifyHost, map[string]any{"host": "Sam"})
		require.NoError(t, err)
	}()

	out, err := runCommand(t, "sync", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 2 action(s), 0 rejected, 0 remaining.")
	assert.Equal(t, []string{"/visitors", "/notifications/host"}, paths)
}

func TestSyncCommand_HaltExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	cfg := writeConfigFile(t, dir, srv.URL, dbPath)

	func() {
		st, err := store.Open(dbPath)
		require.NoError(t, err)
		defer st.Close()
		q := queue.Open(st, queue.Options{})
		_, err = q.Enqueue(context.Background(), queue.KindVisitorCreate, map[string]any{"name": "Jane"})
		require.NoError(t, err)
	}()

	_, err := runCommand(t, "sync", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCheckinCommand_ImmediateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/visitors", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"v-1"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := writeConfigFile(t, dir, srv.URL, filepath.Join(dir, "queue.db"))

	out, err := runCommand(t, "checkin", "Jane Doe", "--host", "Sam Lee", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Checked in Jane Doe.")
}

func TestCheckinCommand_QueuedWhenUnreachable(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	// Nothing listens here; the attempt fails fast with connection refused.
	cfg := writeConfigFile(t, dir, "http://127.0.0.1:1", dbPath)

	out, err := runCommand(t, "checkin", "Jane Doe", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "queued for replay")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.CountActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckinCommand_RejectedExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "missing badge type")
	}))
	defer srv.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	cfg := writeConfigFile(t, dir, srv.URL, dbPath)

	_, err := runCommand(t, "checkin", "Jane Doe", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// Rejected check-ins must not linger in the queue.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.CountActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStatusCommand_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := writeConfigFile(t, dir, srv.URL, filepath.Join(dir, "queue.db"))

	out, err := runCommand(t, "status", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "(reachable)")
	assert.Contains(t, out, "Pending:      0")
}

func TestStatusCommand_Unreachable(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfigFile(t, dir, "http://127.0.0.1:1", filepath.Join(dir, "queue.db"))

	out, err := runCommand(t, "status", "--config", cfg)
	require.NoError(t, err, "status reports unreachability, it does not fail")
	assert.Contains(t, out, "unreachable")
}
