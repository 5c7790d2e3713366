// Package config loads the kiosk agent's YAML configuration.
//
// Loading is two-phase: the raw document is validated against an embedded
// CUE schema (unknown fields, enum values, numeric ranges), then decoded
// into Config on top of the defaults. The schema catches shape mistakes
// with positional messages; the loader enforces the few required fields.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Duration decodes YAML duration strings such as "500ms" or "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Backend configures the request executor.
type Backend struct {
	// BaseURL of the check-in backend. Required.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each individual attempt.
	Timeout Duration `yaml:"timeout"`

	// MaxAttempts is the per-request attempt budget, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the delay before the first retry.
	BackoffBase Duration `yaml:"backoff_base"`

	// BackoffMultiplier grows the delay per retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// QueueSettings configures the durable offline queue.
type QueueSettings struct {
	// Path of the sqlite database file.
	Path string `yaml:"path"`

	// MaxPending bounds the queue before the saturation policy applies.
	MaxPending int `yaml:"max_pending"`

	// MaxAttempts is how many drain failures an action survives before
	// dead-lettering.
	MaxAttempts int `yaml:"max_attempts"`
}

// SyncSettings configures the coordinator.
type SyncSettings struct {
	// ProbeInterval retries pending work periodically even without a
	// connectivity signal from the host.
	ProbeInterval Duration `yaml:"probe_interval"`
}

// LogSettings configures slog output.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Listen address for /metrics, e.g. ":9464". Empty disables it.
	Listen string `yaml:"listen"`
}

// Config is the agent's full configuration.
type Config struct {
	Backend Backend         `yaml:"backend"`
	Queue   QueueSettings   `yaml:"queue"`
	Sync    SyncSettings    `yaml:"sync"`
	Log     LogSettings     `yaml:"log"`
	Metrics MetricsSettings `yaml:"metrics"`
}

// Default returns the configuration used when a field is absent from the
// file. Backend.BaseURL has no default and must be provided.
func Default() Config {
	return Config{
		Backend: Backend{
			Timeout:           Duration(10 * time.Second),
			MaxAttempts:       3,
			BackoffBase:       Duration(500 * time.Millisecond),
			BackoffMultiplier: 2.0,
		},
		Queue: QueueSettings{
			Path:        "foyer.db",
			MaxPending:  500,
			MaxAttempts: 8,
		},
		Sync: SyncSettings{
			ProbeInterval: Duration(30 * time.Second),
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads, validates, and decodes the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML config document.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Backend.BaseURL == "" {
		return Config{}, fmt.Errorf("config: backend.base_url is required")
	}
	return cfg, nil
}

// validate unifies the raw document with the embedded schema. The #Config
// definition is closed, so unknown fields fail here with their position.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema: #Config definition missing")
	}

	unified := def.Unify(ctx.Encode(raw))
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("config validation failed:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}
