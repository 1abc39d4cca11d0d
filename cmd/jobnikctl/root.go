package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/MapColonies/jobnik/pkg/config"
	"github.com/MapColonies/jobnik/pkg/manager"
	"github.com/MapColonies/jobnik/pkg/notify"
	"github.com/MapColonies/jobnik/pkg/storage"
)

// app carries what every subcommand needs once the root pre-run has loaded
// the configuration.
type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	store   *storage.GormStorage
	mgr     *manager.Manager
	closers []func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "jobnikctl",
		Short:         "Manage jobnik jobs, stages and tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", os.Getenv("JOBNIK_CONFIG"), "path to a JSON config file")

	root.AddCommand(
		migrateCmd(a),
		jobCmd(a),
		stageCmd(a),
		taskCmd(a),
		purgeCmd(a),
		workCmd(a),
		configCmd(a),
	)

	cobra.OnFinalize(func() { _ = a.close() })
	return root
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(stderr)
	return nil
}

// manager opens storage and the configured notifier on first use.
func (a *app) manager(ctx context.Context) (*manager.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	store, err := a.storage()
	if err != nil {
		return nil, err
	}

	opts := []manager.Option{
		manager.WithLogger(a.logger),
		manager.DefaultAttempts(a.cfg.Manager.DefaultMaxAttempts),
	}
	n, err := a.notifier(ctx)
	if err != nil {
		return nil, err
	}
	if n != nil {
		opts = append(opts, manager.WithNotifier(n))
	}

	a.mgr = manager.New(store, opts...)
	return a.mgr, nil
}

func (a *app) storage() (*storage.GormStorage, error) {
	if a.store != nil {
		return a.store, nil
	}
	db := a.cfg.Database
	pool, err := db.PoolOptions()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(db.Driver, db.DSN, nil, pool...)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		sqlDB, err := store.DB().DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return store, nil
}

func (a *app) notifier(ctx context.Context) (manager.Notifier, error) {
	n := a.cfg.Notifier
	switch n.Kind {
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return notify.NewRedisNotifier(client, n.Channel), nil
	case "amqp":
		pub, err := notify.DialAMQP(n.URL, n.Channel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	default:
		return nil, nil
	}
}

func (a *app) redisClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(a.cfg.Notifier.URL)
	if err != nil {
		return nil, fmt.Errorf("jobnik: redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	a.store = nil
	a.mgr = nil
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonArg validates raw as JSON. An empty string yields nil.
func jsonArg(name, raw string) (datatypes.JSON, error) {
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("--%s is not valid JSON", name)
	}
	return datatypes.JSON(raw), nil
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("schema migrated", "driver", a.cfg.Database.Driver)
			return nil
		},
	}
}

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), a.cfg)
		},
	}
}
