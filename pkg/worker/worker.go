package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/security"
)

// Handler processes one claimed task. Returning nil completes the task; an
// error records a failed attempt.
type Handler func(ctx context.Context, task *core.Task) error

// TaskSource is the consumer side of the engine. *manager.Manager implements it.
type TaskSource interface {
	DequeueTask(ctx context.Context, stageType string) (*core.Task, error)
	MarkTaskCompleted(ctx context.Context, taskID string) (*core.Task, error)
	MarkTaskFailed(ctx context.Context, taskID string) (*core.Task, error)
}

// ErrNoHandlers is returned by Start when nothing was registered.
var ErrNoHandlers = errors.New("jobnik: worker has no handlers")

// Worker claims tasks of its registered stage types and runs their handlers.
type Worker struct {
	source   TaskSource
	config   WorkerConfig
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string]Handler
	wg       sync.WaitGroup
}

// NewWorker creates a new worker over src.
func NewWorker(src TaskSource, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval: time.Second,
		WorkerID:     uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.DequeueRetry == nil {
		// Longer backoff for dequeue to avoid hammering the DB during outages
		dequeueCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.DequeueRetry = &dequeueCfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		source:   src,
		config:   config,
		logger:   logger.With("worker_id", config.WorkerID),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for a stage type.
func (w *Worker) Handle(stageType string, h Handler) error {
	if err := security.ValidateStageType(stageType); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("jobnik: nil handler for %s", stageType)
	}
	w.mu.Lock()
	w.handlers[stageType] = h
	w.mu.Unlock()
	return nil
}

// Types returns the registered stage types, sorted.
func (w *Worker) Types() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (w *Worker) concurrency(stageType string) int {
	if n, ok := w.config.Types[stageType]; ok {
		return n
	}
	return DefaultConcurrency
}

// Start begins processing tasks. Blocks until ctx is cancelled and every
// in-flight handler has returned.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.RLock()
	handlers := make(map[string]Handler, len(w.handlers))
	for t, h := range w.handlers {
		handlers[t] = h
	}
	w.mu.RUnlock()
	if len(handlers) == 0 {
		return ErrNoHandlers
	}

	wake := make(map[string]chan struct{}, len(handlers))
	for stageType, h := range handlers {
		n := w.concurrency(stageType)
		// A slot is held from claim until the report lands, so at most n
		// tasks of a type are ever claimed by this worker.
		slots := make(chan struct{}, n)
		tasks := make(chan *core.Task, n)
		wake[stageType] = make(chan struct{}, 1)

		for i := 0; i < n; i++ {
			w.wg.Add(1)
			go w.processLoop(ctx, stageType, h, tasks, slots)
		}
		w.wg.Add(1)
		go w.pollLoop(ctx, stageType, tasks, slots, wake[stageType])
	}
	if w.config.Wake != nil {
		go w.routeWakeups(ctx, wake)
	}

	w.logger.Info("worker started", "types", w.Types())
	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// routeWakeups forwards notifications to the poll loop of their stage type.
func (w *Worker) routeWakeups(ctx context.Context, wake map[string]chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case stageType, ok := <-w.config.Wake:
			if !ok {
				return
			}
			ch, known := wake[stageType]
			if !known {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
				// A wake-up is already pending
			}
		}
	}
}

// pollLoop claims tasks of one stage type on every tick or wake-up until
// none are left, handing them to the processors.
func (w *Worker) pollLoop(ctx context.Context, stageType string, tasks chan<- *core.Task, slots chan struct{}, wake <-chan struct{}) {
	defer w.wg.Done()
	defer close(tasks)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx, stageType, tasks, slots)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// drain claims tasks while processors are free. It never claims a task it
// cannot hand off straight away.
func (w *Worker) drain(ctx context.Context, stageType string, tasks chan<- *core.Task, slots chan struct{}) {
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			<-slots
			return
		}

		task, err := w.dequeueWithRetry(ctx, stageType)
		if err != nil {
			<-slots
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				w.logger.Error("failed to dequeue after retries", "type", stageType, "error", err)
			}
			return
		}
		if task == nil {
			<-slots
			return
		}
		// The held slot guarantees buffer space.
		tasks <- task
	}
}

// dequeueWithRetry attempts to dequeue a task with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, stageType string) (*core.Task, error) {
	var task *core.Task
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		task, dequeueErr = w.source.DequeueTask(ctx, stageType)
		return dequeueErr
	})
	return task, err
}

func (w *Worker) processLoop(ctx context.Context, stageType string, h Handler, tasks <-chan *core.Task, slots <-chan struct{}) {
	defer w.wg.Done()

	for task := range tasks {
		w.processTask(ctx, stageType, h, task)
		<-slots
	}
}

func (w *Worker) processTask(ctx context.Context, stageType string, h Handler, task *core.Task) {
	startTime := time.Now()
	log := w.logger.With("task_id", task.ID, "type", stageType)

	err := w.executeHandler(ctx, h, task)

	// Reports must land even while the worker shuts down.
	reportCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Warn("task handler failed", "error", security.SanitizeErrorMessage(err.Error()), "duration", time.Since(startTime))
		w.failWithRetry(reportCtx, task, err)
		return
	}

	if err := w.completeWithRetry(reportCtx, task.ID); err != nil {
		log.Error("failed to complete task after retries", "error", err)
		return
	}
	log.Debug("task completed", "duration", time.Since(startTime))
}

func (w *Worker) executeHandler(ctx context.Context, h Handler, task *core.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, task)
}

// completeWithRetry marks a task complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, taskID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		_, err := w.source.MarkTaskCompleted(ctx, taskID)
		return err
	})
}

// failWithRetry records a failed attempt with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, task *core.Task, cause error) {
	var updated *core.Task
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var failErr error
		updated, failErr = w.source.MarkTaskFailed(ctx, task.ID)
		return failErr
	})
	if err != nil {
		w.logger.Error("failed to mark task as failed after retries", "task_id", task.ID, "error", err)
		return
	}
	w.logger.Debug("task attempt recorded",
		"task_id", updated.ID,
		"status", updated.Status,
		"attempts", updated.Attempts,
		"cause", security.SanitizeErrorMessage(cause.Error()),
	)
}
