package manager

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MapColonies/jobnik/pkg/security"
)

// Config holds Manager configuration.
type Config struct {
	// DefaultMaxAttempts applies to tasks created without an attempt budget.
	DefaultMaxAttempts int
	// ConflictRetry governs transparent retries of transactions that lost a race.
	ConflictRetry RetryConfig

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Notifier Notifier
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		DefaultMaxAttempts: DefaultMaxAttempts,
		ConflictRetry:      DefaultConflictRetry(),
	}
}

// Option modifies Config.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}

// WithTracer sets the OpenTelemetry tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return optionFunc(func(c *Config) {
		c.Tracer = t
	})
}

// WithNotifier sets the notifier told about new claimable work.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(c *Config) {
		c.Notifier = n
	})
}

// DefaultAttempts sets the attempt budget for tasks created without one.
// Values are clamped to [1, security.MaxAttempts].
func DefaultAttempts(n int) Option {
	return optionFunc(func(c *Config) {
		c.DefaultMaxAttempts = security.ClampAttempts(n)
	})
}

// ConflictRetries sets the retry policy for lost transactional races.
func ConflictRetries(rc RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.ConflictRetry = rc
	})
}

// Default values.
var (
	DefaultMaxAttempts = 3
)

// DefaultConflictRetry returns the policy for lost races: short, jittered
// and bounded, since contention clears as soon as the winner commits.
func DefaultConflictRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    2 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.5,
	}
}
