package worker

import (
	"log/slog"
	"time"

	"github.com/MapColonies/jobnik/pkg/security"
)

// DefaultConcurrency is the number of tasks of one stage type processed at once.
const DefaultConcurrency = 10

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Types        map[string]int // stage type -> concurrency
	PollInterval time.Duration
	WorkerID     string
	Logger       *slog.Logger

	// Wake delivers stage types that just gained claimable work, cutting
	// the wait until the next poll.
	Wake <-chan string

	StorageRetry *RetryConfig
	DequeueRetry *RetryConfig
}

// Concurrency sets the concurrency for every stage type configured so far.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		clamped := security.ClampConcurrency(n)
		for k := range c.Types {
			c.Types[k] = clamped
		}
	})
}

// StageType configures concurrency for one stage type. Types with a handler
// but no StageType option run at DefaultConcurrency.
func StageType(name string, opts ...WorkerOption) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Types == nil {
			c.Types = make(map[string]int)
		}
		scoped := WorkerConfig{Types: map[string]int{name: DefaultConcurrency}}
		for _, opt := range opts {
			opt.ApplyWorker(&scoped)
		}
		c.Types[name] = scoped.Types[name]
	})
}

// PollInterval sets how often each stage type is polled when idle.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID sets the identifier used in logs.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WakeOn polls a stage type as soon as its name arrives on ch.
func WakeOn(ch <-chan string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Wake = ch
	})
}

// WithStorageRetry sets the retry policy for completion and failure reports.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry policy for dequeue calls.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// WithRetryAttempts sets the storage retry attempts, keeping default backoff.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage call a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		once := RetryConfig{MaxAttempts: 1}
		c.StorageRetry = &once
		dequeueOnce := once
		c.DequeueRetry = &dequeueOnce
	})
}
