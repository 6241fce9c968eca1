// Package canvasconfig assembles the engine's runtime configuration
// with a functional-options pattern: a private config struct built up
// by Option funcs, with a YAML file and environment overrides layered
// on top rather than replacing it, so a deployment can start from a
// checked-in file and tweak a handful of values (API keys especially)
// per environment.
package canvasconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreKind selects which canvasstore.Store implementation the server runs against.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreSQLite StoreKind = "sqlite"
	StoreMySQL  StoreKind = "mysql"
)

// EmitterKind selects the base canvasemit.Emitter the server logs/traces through.
type EmitterKind string

const (
	EmitterLog  EmitterKind = "log"
	EmitterOTel EmitterKind = "otel"
)

// Config is the engine's full runtime configuration. Zero-value fields
// are filled by Defaults and then by any Option passed to Load.
type Config struct {
	// HTTPAddr is the address canvashttp.Server listens on.
	HTTPAddr string `yaml:"httpAddr"`

	StoreKind  StoreKind `yaml:"storeKind"`
	StoreDSN   string    `yaml:"storeDSN"`
	EmitterKind EmitterKind `yaml:"emitterKind"`
	LogJSON    bool      `yaml:"logJSON"`

	// MaxConcurrentBatches and MaxDispatchesPerSecond bound
	// canvasqueue.Queue (spec.md §5: defaults 10 and 100).
	MaxConcurrentBatches   int64 `yaml:"maxConcurrentBatches"`
	MaxDispatchesPerSecond int   `yaml:"maxDispatchesPerSecond"`

	// ReconcileInterval and StaleTaskThreshold tune canvasqueue.Reconciler.
	ReconcileInterval  time.Duration `yaml:"reconcileInterval"`
	StaleTaskThreshold time.Duration `yaml:"staleTaskThreshold"`

	// GaugePollInterval is how often the inflight_tasks/pending_batches
	// Prometheus gauges are refreshed from store state.
	GaugePollInterval time.Duration `yaml:"gaugePollInterval"`

	// DefaultTaskTimeout bounds one processor.Process call.
	DefaultTaskTimeout time.Duration `yaml:"defaultTaskTimeout"`

	// MetricsEnabled toggles canvasmetrics registration.
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// LLMAPIKeys overrides the per-provider key an illustrative.LLMProcessor
	// uses instead of a run's own apiKey field. Keyed by provider name
	// ("anthropic", "openai", "google").
	LLMAPIKeys map[string]string `yaml:"-"`
}

// Defaults returns the configuration a bare `canvasengine-server` run
// starts from before any file, environment, or Option is applied.
func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		StoreKind:              StoreMemory,
		EmitterKind:            EmitterLog,
		MaxConcurrentBatches:   10,
		MaxDispatchesPerSecond: 100,
		ReconcileInterval:      30 * time.Second,
		StaleTaskThreshold:     10 * time.Minute,
		GaugePollInterval:      5 * time.Second,
		DefaultTaskTimeout:     60 * time.Second,
		MetricsEnabled:         true,
	}
}

// Option mutates a Config during Load. Options never fail validation
// themselves — Load validates the fully-assembled Config once, after
// every source has applied.
type Option func(*Config)

// WithHTTPAddr overrides the listen address.
func WithHTTPAddr(addr string) Option {
	return func(c *Config) { c.HTTPAddr = addr }
}

// WithStore selects the store backend and its DSN (file path for
// sqlite, connection string for mysql; ignored for memory).
func WithStore(kind StoreKind, dsn string) Option {
	return func(c *Config) { c.StoreKind = kind; c.StoreDSN = dsn }
}

// WithEmitter selects the base emitter and, for the log emitter,
// whether it writes structured JSON lines instead of text.
func WithEmitter(kind EmitterKind, jsonMode bool) Option {
	return func(c *Config) { c.EmitterKind = kind; c.LogJSON = jsonMode }
}

// WithDispatchLimits overrides the queue's concurrency and rate caps.
// A non-positive value leaves the corresponding field untouched.
func WithDispatchLimits(maxConcurrentBatches int64, maxDispatchesPerSecond int) Option {
	return func(c *Config) {
		if maxConcurrentBatches > 0 {
			c.MaxConcurrentBatches = maxConcurrentBatches
		}
		if maxDispatchesPerSecond > 0 {
			c.MaxDispatchesPerSecond = maxDispatchesPerSecond
		}
	}
}

// WithLLMAPIKey sets the override key for one LLM provider.
func WithLLMAPIKey(provider, key string) Option {
	return func(c *Config) {
		if c.LLMAPIKeys == nil {
			c.LLMAPIKeys = make(map[string]string)
		}
		c.LLMAPIKeys[provider] = key
	}
}

// Load builds a Config from Defaults, a YAML file (if path is
// non-empty), environment variable overrides, and finally opts, in
// that order — each source overriding the previous one field by
// field. It then validates the result.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("CANVASENGINE_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("CANVASENGINE_STORE_KIND"); v != "" {
		c.StoreKind = StoreKind(v)
	}
	if v := os.Getenv("CANVASENGINE_STORE_DSN"); v != "" {
		c.StoreDSN = v
	}
	for _, provider := range []string{"anthropic", "openai", "google"} {
		envKey := "CANVASENGINE_" + envUpper(provider) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			if c.LLMAPIKeys == nil {
				c.LLMAPIKeys = make(map[string]string)
			}
			c.LLMAPIKeys[provider] = v
		}
	}
}

func envUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func (c Config) validate() error {
	switch c.StoreKind {
	case StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.StoreDSN == "" {
			return fmt.Errorf("storeKind %s requires a non-empty storeDSN", c.StoreKind)
		}
	default:
		return fmt.Errorf("unknown storeKind %q", c.StoreKind)
	}
	switch c.EmitterKind {
	case EmitterLog, EmitterOTel:
	default:
		return fmt.Errorf("unknown emitterKind %q", c.EmitterKind)
	}
	return nil
}
