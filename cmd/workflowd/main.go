// Command workflowd runs the workflow automation engine: the cron-driven
// poll Scheduler (C6), the Redis-backed Job Queue (C7), the Executor (C8)
// worker pool, and the Log Reaper (C11), wired against a Postgres store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/workflowd/workflowd/engine/dedup"
	"github.com/workflowd/workflowd/engine/executor"
	"github.com/workflowd/workflowd/engine/infra/postgres"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
	"github.com/workflowd/workflowd/engine/interpreter"
	"github.com/workflowd/workflowd/engine/queue"
	"github.com/workflowd/workflowd/engine/reaper"
	"github.com/workflowd/workflowd/engine/scheduler"
	"github.com/workflowd/workflowd/pkg/config"
	"github.com/workflowd/workflowd/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "workflowd",
		Short: "Workflow automation engine daemon",
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("env-file", ".env", "path to a .env file to load before reading configuration")
	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, executor, and reaper until interrupted",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	loadEnvFile(cmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, cmd.Flags())
	if err != nil {
		return fmt.Errorf("workflowd: loading config: %w", err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	ctx = logger.ContextWithLogger(ctx, log)

	app, err := wireApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("workflowd: wiring components: %w", err)
	}
	defer app.close(ctx)

	if err := app.start(ctx); err != nil {
		return fmt.Errorf("workflowd: starting components: %w", err)
	}
	log.Info("workflowd started", "tick", cfg.Scheduler.Tick, "reaper_interval", cfg.Scheduler.ReaperInterval, "worker_concurrency", cfg.Worker.Concurrency)

	app.executor.Run(ctx)
	log.Info("workflowd shutting down")
	return nil
}

// loadEnvFile loads a .env file into the process environment before
// configuration is read. A missing file is not fatal: defaults and any
// already-exported environment variables still apply.
func loadEnvFile(flags *pflag.FlagSet) {
	path, err := flags.GetString("env-file")
	if err != nil || path == "" {
		return
	}
	if !filepath.IsAbs(path) {
		if wd, wdErr := os.Getwd(); wdErr == nil {
			path = filepath.Join(wd, path)
		}
	}
	_ = godotenv.Load(path)
}

func loadConfig(ctx context.Context, flags *pflag.FlagSet) (*config.Config, error) {
	providers := []config.Provider{config.NewDefaultProvider()}
	if path, _ := flags.GetString("config"); path != "" {
		providers = append(providers, config.NewYAMLProvider(path))
	}
	providers = append(providers, config.NewEnvProvider())
	manager := config.NewManager(nil)
	return manager.Load(ctx, providers...)
}

// app holds every long-running component wireApp constructs, so runServe
// can start and stop them as a unit.
type app struct {
	store     *postgres.Store
	scheduler *scheduler.Scheduler
	executor  *executor.Pool
	reaper    *reaper.Reaper
	tick      time.Duration
	reapEvery time.Duration
}

func wireApp(ctx context.Context, cfg *config.Config) (*app, error) {
	dbCfg := postgres.FromAppConfig(
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password.Value(), cfg.Database.Name, cfg.Database.SSLMode,
	)
	dsn := cfg.Database.DSN.Value()
	if dsn != "" {
		dbCfg.ConnString = dsn
	} else {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			cfg.Database.User, cfg.Database.Password.Value(), cfg.Database.Host,
			cfg.Database.Port, cfg.Database.Name, cfg.Database.SSLMode,
		)
	}

	store, err := postgres.NewStore(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := postgres.ApplyMigrationsWithLock(ctx, dsn); err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	workflows := postgres.NewWorkflowRepo(store.Pool())
	credentials := postgres.NewCredentialRepo(store.Pool())
	events := postgres.NewEventLogRepo(store.Pool())

	dsp, err := dispatcher.New(credentials, events, cfg.Providers)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("building dispatcher: %w", err)
	}

	dd := dedup.New(workflows)

	q, err := queue.New(cfg.Queue)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("connecting to queue: %w", err)
	}

	interp := interpreter.New(dsp, events, credentials)
	sched := scheduler.New(workflows, dsp, dd, q, events, cfg.Scheduler)
	pool := executor.New(workflows, q, interp, events, cfg.Worker, cfg.Scheduler.DropOnTerminalFail)
	rpr := reaper.New(workflows, events, cfg.Scheduler.LogRetentionDays)

	return &app{
		store:     store,
		scheduler: sched,
		executor:  pool,
		reaper:    rpr,
		tick:      cfg.Scheduler.Tick,
		reapEvery: cfg.Scheduler.ReaperInterval,
	}, nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx, a.tick); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	if err := a.reaper.Start(ctx, a.reapEvery); err != nil {
		return fmt.Errorf("starting reaper: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	a.scheduler.Stop()
	a.reaper.Stop()
	if err := a.store.Close(ctx); err != nil {
		logger.FromContext(ctx).Error("workflowd: closing store", "error", err)
	}
}
