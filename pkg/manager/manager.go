package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MapColonies/jobnik/pkg/core"
)

// Notifier is told, after commit, that a stage type has new claimable work.
type Notifier interface {
	Notify(ctx context.Context, stageType string) error
}

// Manager runs every job, stage and task operation against a Storage.
// All state changes of one operation commit in a single transaction; hooks,
// events and notifications fire only after that commit.
type Manager struct {
	storage  core.Storage
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer
	notifier Notifier
	mu       sync.RWMutex

	hooks hooks

	// Event stream
	eventSubs []chan core.Event
}

type hooks struct {
	onJobCreated    []func(context.Context, *core.Job)
	onJobStatus     []func(context.Context, *core.Job, core.JobStatus)
	onTasksCreated  []func(context.Context, string, int)
	onTaskDequeued  []func(context.Context, *core.Task, string)
	onTaskCompleted []func(context.Context, *core.Task, string)
	onTaskFailed    []func(context.Context, *core.Task, string, bool)
	onDequeueEmpty  []func(context.Context, string)
}

// New creates a Manager over s.
func New(s core.Storage, opts ...Option) *Manager {
	config := DefaultConfig()
	for _, opt := range opts {
		opt.Apply(&config)
	}

	m := &Manager{
		storage:  s,
		config:   config,
		logger:   config.Logger,
		tracer:   config.Tracer,
		notifier: config.Notifier,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

// Storage returns the underlying storage.
func (m *Manager) Storage() core.Storage {
	return m.storage
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// OnJobCreated registers a callback for newly created jobs.
func (m *Manager) OnJobCreated(fn func(context.Context, *core.Job)) {
	m.mu.Lock()
	m.hooks.onJobCreated = append(m.hooks.onJobCreated, fn)
	m.mu.Unlock()
}

// OnJobStatusChange registers a callback for job transitions. It receives
// the job after the change and the status it left.
func (m *Manager) OnJobStatusChange(fn func(context.Context, *core.Job, core.JobStatus)) {
	m.mu.Lock()
	m.hooks.onJobStatus = append(m.hooks.onJobStatus, fn)
	m.mu.Unlock()
}

// OnTasksCreated registers a callback receiving the stage type and count of new tasks.
func (m *Manager) OnTasksCreated(fn func(context.Context, string, int)) {
	m.mu.Lock()
	m.hooks.onTasksCreated = append(m.hooks.onTasksCreated, fn)
	m.mu.Unlock()
}

// OnTaskDequeued registers a callback for claimed tasks.
func (m *Manager) OnTaskDequeued(fn func(context.Context, *core.Task, string)) {
	m.mu.Lock()
	m.hooks.onTaskDequeued = append(m.hooks.onTaskDequeued, fn)
	m.mu.Unlock()
}

// OnTaskCompleted registers a callback for completed tasks.
func (m *Manager) OnTaskCompleted(fn func(context.Context, *core.Task, string)) {
	m.mu.Lock()
	m.hooks.onTaskCompleted = append(m.hooks.onTaskCompleted, fn)
	m.mu.Unlock()
}

// OnTaskFailed registers a callback for failure reports. retried is true
// when the task went back to RETRIED rather than FAILED.
func (m *Manager) OnTaskFailed(fn func(ctx context.Context, task *core.Task, stageType string, retried bool)) {
	m.mu.Lock()
	m.hooks.onTaskFailed = append(m.hooks.onTaskFailed, fn)
	m.mu.Unlock()
}

// OnDequeueEmpty registers a callback for dequeue calls that found nothing.
func (m *Manager) OnDequeueEmpty(fn func(context.Context, string)) {
	m.mu.Lock()
	m.hooks.onDequeueEmpty = append(m.hooks.onDequeueEmpty, fn)
	m.mu.Unlock()
}

// Events returns a channel for receiving engine events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (m *Manager) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	m.mu.Lock()
	m.eventSubs = append(m.eventSubs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; after Unsubscribe returns no further events
// are sent to it.
func (m *Manager) Unsubscribe(ch <-chan core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.eventSubs {
		if sub == ch {
			m.eventSubs = append(m.eventSubs[:i], m.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers without blocking.
func (m *Manager) Emit(e core.Event) {
	m.mu.RLock()
	subs := make([]chan core.Event, len(m.eventSubs))
	copy(subs, m.eventSubs)
	m.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full
		}
	}
}

// publish delivers the side effects of a committed transaction.
func (m *Manager) publish(ctx context.Context, c *changes) {
	if c == nil {
		return
	}
	for _, e := range c.events {
		m.callHooks(ctx, e)
		m.Emit(e)
	}
	for _, stageType := range c.wakeTypes() {
		m.notify(ctx, stageType)
	}
}

func (m *Manager) notify(ctx context.Context, stageType string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, stageType); err != nil {
		m.logger.Warn("work notification failed", "type", stageType, "error", err)
	}
}

// snapshot copies the hook lists so callbacks run without the lock held.
func (m *Manager) snapshot() hooks {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hooks
}

func (m *Manager) callHooks(ctx context.Context, e core.Event) {
	h := m.snapshot()

	switch ev := e.(type) {
	case *core.JobCreated:
		for _, fn := range h.onJobCreated {
			fn(ctx, ev.Job)
		}
	case *core.JobStatusChanged:
		for _, fn := range h.onJobStatus {
			fn(ctx, ev.Job, ev.From)
		}
	case *core.TasksCreated:
		for _, fn := range h.onTasksCreated {
			fn(ctx, ev.StageType, ev.Count)
		}
	case *core.TaskDequeued:
		for _, fn := range h.onTaskDequeued {
			fn(ctx, ev.Task, ev.StageType)
		}
	case *core.TaskCompleted:
		for _, fn := range h.onTaskCompleted {
			fn(ctx, ev.Task, ev.StageType)
		}
	case *core.TaskRetried:
		for _, fn := range h.onTaskFailed {
			fn(ctx, ev.Task, ev.StageType, true)
		}
	case *core.TaskFailed:
		for _, fn := range h.onTaskFailed {
			fn(ctx, ev.Task, ev.StageType, false)
		}
	}
}

func (m *Manager) callDequeueEmptyHooks(ctx context.Context, stageType string) {
	for _, fn := range m.snapshot().onDequeueEmpty {
		fn(ctx, stageType)
	}
}

// inTx runs fn in a storage transaction, retrying on conflicts, and
// publishes the collected side effects once it commits.
func (m *Manager) inTx(ctx context.Context, fn func(t *txn) error) error {
	var committed *changes
	err := retryConflicts(ctx, m.config.ConflictRetry, func() error {
		return m.storage.Transaction(ctx, func(tx core.Storage) error {
			t := &txn{ctx: ctx, tx: tx, now: time.Now()}
			if err := fn(t); err != nil {
				return err
			}
			committed = &t.changes
			return nil
		})
	})
	if err != nil {
		return err
	}
	m.publish(ctx, committed)
	return nil
}
