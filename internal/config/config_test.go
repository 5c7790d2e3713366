package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(`
backend:
  base_url: https://checkin.example.com
  timeout: 5s
  max_attempts: 4
  backoff_base: 250ms
  backoff_multiplier: 3.0
queue:
  path: /var/lib/foyer/queue.db
  max_pending: 100
  max_attempts: 5
sync:
  probe_interval: 1m
log:
  level: debug
  format: json
metrics:
  listen: ":9464"
`))
	require.NoError(t, err)

	assert.Equal(t, "https://checkin.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, 4, cfg.Backend.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Backend.BackoffBase.Std())
	assert.Equal(t, 3.0, cfg.Backend.BackoffMultiplier)
	assert.Equal(t, "/var/lib/foyer/queue.db", cfg.Queue.Path)
	assert.Equal(t, 100, cfg.Queue.MaxPending)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Sync.ProbeInterval.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9464", cfg.Metrics.Listen)
}

func TestParse_DefaultsFillMissingFields(t *testing.T) {
	cfg, err := Parse([]byte(`
backend:
  base_url: http://localhost:8080
`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, 3, cfg.Backend.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.BackoffBase.Std())
	assert.Equal(t, 2.0, cfg.Backend.BackoffMultiplier)
	assert.Equal(t, 500, cfg.Queue.MaxPending)
	assert.Equal(t, 8, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Sync.ProbeInterval.Std())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Metrics.Listen, "metrics endpoint is off by default")
}

func TestParse_RequiresBaseURL(t *testing.T) {
	_, err := Parse([]byte(`
log:
  level: info
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`
backend:
  base_url: http://localhost:8080
  retries: 5
`))
	assert.Error(t, err, "the schema is closed; misspelled keys must not be ignored")
}

func TestParse_RejectsBadEnum(t *testing.T) {
	_, err := Parse([]byte(`
backend:
  base_url: http://localhost:8080
log:
  level: loud
`))
	assert.Error(t, err)
}

func TestParse_RejectsOutOfRange(t *testing.T) {
	for name, doc := range map[string]string{
		"zero attempts": `
backend:
  base_url: http://localhost:8080
  max_attempts: 0
`,
		"multiplier below one": `
backend:
  base_url: http://localhost:8080
  backoff_multiplier: 0.5
`,
		"non-http url": `
backend:
  base_url: ftp://host
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_RejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte(`
backend:
  base_url: http://localhost:8080
  timeout: ten seconds
`))
	assert.Error(t, err)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("backend: [unclosed"))
	assert.Error(t, err)
}
