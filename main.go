package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"redditfit/internal/app"
	"redditfit/internal/config"
	"redditfit/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "redditfit",
		Short:         "Subreddit rewrite backend: HTTP API, background jobs and error monitoring.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, job processor and schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}

			log, buf, closeLog, err := setupLogger(cfg)
			if err != nil {
				slog.Error("failed to open log file", "error", err)
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, log, buf); err != nil {
				log.Error("app exited", "error", err)
				return err
			}
			return nil
		},
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE

	migrateCmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return migrateDB(cfg, args[0])
		},
	}
	root.AddCommand(migrateCmd)

	return root
}

// setupLogger installs the process logger and returns the in-memory buffer
// that backs GET /logs.
func setupLogger(cfg *config.Config) (*slog.Logger, *logger.Buffer, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var (
		w       io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if cfg.LogFilePath != "" {
		fw, c, err := logger.OpenFile(cfg.LogFilePath)
		if err != nil {
			return nil, nil, nil, err
		}
		w = fw
		closeFn = func() { _ = c.Close() }
	}

	buf := logger.NewBuffer(cfg.LogBufferSize, level)
	l := logger.New(w, buf, level)
	slog.SetDefault(l)
	return l, buf, closeFn, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, buf *logger.Buffer) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer deps.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.New(cfg, deps.DB, deps.NSQProducer, log, buf, reg)
	if err != nil {
		return fmt.Errorf("app init failed: %w", err)
	}
	return a.Run(ctx)
}

func migrateDB(cfg *config.Config, direction string) error {
	m, err := migrate.New(cfg.MigrationPath, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	slog.Info("migrations finished", "direction", direction)
	return nil
}
