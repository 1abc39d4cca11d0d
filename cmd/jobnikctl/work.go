package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/janitor"
	"github.com/MapColonies/jobnik/pkg/metrics"
	"github.com/MapColonies/jobnik/pkg/notify"
	"github.com/MapColonies/jobnik/pkg/worker"
)

func workCmd(a *app) *cobra.Command {
	var (
		types       []string
		concurrency int
		command     string
		metricsAddr string
		withJanitor bool
	)
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Consume tasks until interrupted",
		Long: "Consume tasks of the given stage types until interrupted. With --exec each task's\n" +
			"JSON is piped to a shell command and a non-zero exit reports the task as failed;\n" +
			"without it tasks are logged and completed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("type") {
				types = a.cfg.Worker.Types
			}
			if len(types) == 0 {
				return errors.New("no stage types to consume, set --type or worker.types")
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Worker.Concurrency
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}

			m, err := a.manager(ctx)
			if err != nil {
				return err
			}

			opts := []worker.WorkerOption{
				worker.PollInterval(time.Duration(a.cfg.Worker.PollInterval)),
				worker.WithLogger(a.logger),
			}
			for _, t := range types {
				opts = append(opts, worker.StageType(t, worker.Concurrency(concurrency)))
			}
			wake, err := a.wakeups(ctx, types)
			if err != nil {
				return err
			}
			if wake != nil {
				opts = append(opts, worker.WakeOn(wake))
			}

			w := worker.NewWorker(m, opts...)
			handler := a.logTask
			if command != "" {
				handler = a.execTask(command)
			}
			for _, t := range types {
				if err := w.Handle(t, handler); err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ignoreCanceled(w.Start(ctx)) })
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				c := metrics.New(a.cfg.Metrics.Namespace)
				if err := c.Register(reg); err != nil {
					return err
				}
				c.Attach(m)
				g.Go(func() error { return a.serveMetrics(ctx, metricsAddr, reg) })
			}
			if withJanitor {
				j, err := a.janitor()
				if err != nil {
					return err
				}
				g.Go(func() error { return ignoreCanceled(j.Start(ctx)) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "stage types to consume (default worker.types)")
	cmd.Flags().IntVar(&concurrency, "concurrency", worker.DefaultConcurrency, "handlers per stage type (default worker.concurrency)")
	cmd.Flags().StringVar(&command, "exec", "", "shell command run per task with the task JSON on stdin")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics here, empty to disable (default metrics.addr)")
	cmd.Flags().BoolVar(&withJanitor, "janitor", false, "also purge finished jobs on the janitor schedule")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// wakeups subscribes to the configured notifier. A nil channel means the
// worker relies on polling alone.
func (a *app) wakeups(ctx context.Context, types []string) (<-chan string, error) {
	n := a.cfg.Notifier
	switch n.Kind {
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return notify.NewRedisNotifier(client, n.Channel).Subscribe(ctx)
	case "amqp":
		conn, err := amqp.Dial(n.URL)
		if err != nil {
			return nil, fmt.Errorf("jobnik: connect to RabbitMQ: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("jobnik: open channel: %w", err)
		}
		exchange := n.Channel
		if exchange == "" {
			exchange = notify.DefaultExchange
		}
		if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("jobnik: declare exchange %s: %w", exchange, err)
		}
		return notify.ConsumeAMQP(ctx, ch, exchange, types)
	default:
		return nil, nil
	}
}

func (a *app) logTask(ctx context.Context, task *core.Task) error {
	a.logger.InfoContext(ctx, "task received",
		"task_id", task.ID,
		"job_id", task.JobID,
		"stage_id", task.StageID,
		"attempt", task.Attempts+1,
		"data", string(task.Data),
	)
	return nil
}

func (a *app) execTask(command string) worker.Handler {
	return func(ctx context.Context, task *core.Task) error {
		payload, err := json.Marshal(task)
		if err != nil {
			return err
		}
		c := exec.CommandContext(ctx, "sh", "-c", command)
		c.Stdin = bytes.NewReader(payload)
		c.Env = append(os.Environ(),
			"JOBNIK_TASK_ID="+task.ID,
			"JOBNIK_JOB_ID="+task.JobID,
			"JOBNIK_STAGE_ID="+task.StageID,
		)
		out, err := c.CombinedOutput()
		if err != nil {
			a.logger.WarnContext(ctx, "task command failed", "task_id", task.ID, "error", err, "output", string(out))
			return fmt.Errorf("command failed: %w", err)
		}
		a.logger.DebugContext(ctx, "task command finished", "task_id", task.ID, "output", string(out))
		return nil
	}
}

func (a *app) serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) janitor() (*janitor.Janitor, error) {
	store, err := a.storage()
	if err != nil {
		return nil, err
	}
	schedule, err := janitor.Cron(a.cfg.Janitor.Schedule)
	if err != nil {
		return nil, err
	}
	return janitor.New(store,
		janitor.WithSchedule(schedule),
		janitor.WithRetention(time.Duration(a.cfg.Janitor.Retention)),
		janitor.WithLogger(a.logger),
	), nil
}

func purgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete finished jobs older than the janitor retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.janitor()
			if err != nil {
				return err
			}
			n, err := j.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Purged int64 `json:"purged"`
			}{n})
		},
	}
}
