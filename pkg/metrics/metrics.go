// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MapColonies/jobnik/pkg/core"
)

// Hooks is the hook registration surface of *manager.Manager.
type Hooks interface {
	OnJobCreated(fn func(context.Context, *core.Job))
	OnJobStatusChange(fn func(context.Context, *core.Job, core.JobStatus))
	OnTasksCreated(fn func(context.Context, string, int))
	OnTaskDequeued(fn func(context.Context, *core.Task, string))
	OnTaskCompleted(fn func(context.Context, *core.Task, string))
	OnTaskFailed(fn func(ctx context.Context, task *core.Task, stageType string, retried bool))
	OnDequeueEmpty(fn func(context.Context, string))
}

// Collector holds the engine's metrics.
type Collector struct {
	JobsCreated     *prometheus.CounterVec
	JobTransitions  *prometheus.CounterVec
	TasksCreated    *prometheus.CounterVec
	TasksDequeued   *prometheus.CounterVec
	TasksProcessed  *prometheus.CounterVec
	DequeueEmpty    *prometheus.CounterVec
	TaskRunDuration *prometheus.HistogramVec
}

// New creates a Collector with metric names under namespace.
func New(namespace string) *Collector {
	return &Collector{
		JobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "The total number of created jobs",
		}, []string{"priority"}),
		JobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "The total number of job status transitions",
		}, []string{"from", "to"}),
		TasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "The total number of created tasks",
		}, []string{"type"}),
		TasksDequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dequeued_total",
			Help:      "The total number of claimed tasks",
		}, []string{"type"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "The total number of task reports",
		}, []string{"type", "status"}), // status: completed, retried, failed
		DequeueEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dequeue_empty_total",
			Help:      "The total number of dequeue calls that found no task",
		}, []string{"type"}),
		TaskRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_run_duration_seconds",
			Help:      "Time from claim to terminal report of a task attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
	}
}

// Register registers every metric with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.JobsCreated, c.JobTransitions, c.TasksCreated, c.TasksDequeued,
		c.TasksProcessed, c.DequeueEmpty, c.TaskRunDuration,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Attach records h's activity.
func (c *Collector) Attach(h Hooks) {
	h.OnJobCreated(func(_ context.Context, job *core.Job) {
		c.JobsCreated.WithLabelValues(string(job.Priority)).Inc()
	})
	h.OnJobStatusChange(func(_ context.Context, job *core.Job, from core.JobStatus) {
		c.JobTransitions.WithLabelValues(string(from), string(job.Status)).Inc()
	})
	h.OnTasksCreated(func(_ context.Context, stageType string, n int) {
		c.TasksCreated.WithLabelValues(stageType).Add(float64(n))
	})
	h.OnTaskDequeued(func(_ context.Context, _ *core.Task, stageType string) {
		c.TasksDequeued.WithLabelValues(stageType).Inc()
	})
	h.OnTaskCompleted(func(_ context.Context, task *core.Task, stageType string) {
		c.TasksProcessed.WithLabelValues(stageType, "completed").Inc()
		c.observeRun(task, stageType)
	})
	h.OnTaskFailed(func(_ context.Context, task *core.Task, stageType string, retried bool) {
		status := "failed"
		if retried {
			status = "retried"
		}
		c.TasksProcessed.WithLabelValues(stageType, status).Inc()
		c.observeRun(task, stageType)
	})
	h.OnDequeueEmpty(func(_ context.Context, stageType string) {
		c.DequeueEmpty.WithLabelValues(stageType).Inc()
	})
}

func (c *Collector) observeRun(task *core.Task, stageType string) {
	if task.StartedAt == nil {
		return
	}
	end := task.UpdatedAt
	if task.CompletedAt != nil {
		end = *task.CompletedAt
	}
	if d := end.Sub(*task.StartedAt); d >= 0 {
		c.TaskRunDuration.WithLabelValues(stageType).Observe(d.Seconds())
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
