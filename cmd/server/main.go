package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adminkit/session-auth-service/internal/app"
	"github.com/adminkit/session-auth-service/internal/config"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/tools/seed"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "session-auth-service",
		Short:         "Authentication and session management service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCommand(), seed.NewCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			cfg, err := config.Load(bootLogger)
			if err != nil {
				bootLogger.Error("load config", "err", err)
				return err
			}

			loggerProvider, logger, err := observability.InitLogging(ctx, cfg)
			if err != nil {
				bootLogger.Error("init logging", "err", err)
				return err
			}
			slog.SetDefault(logger)

			runtime, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				logger.Error("init observability", "err", err)
				return err
			}
			runtime.LoggerProvider = loggerProvider

			a, err := app.Build(ctx, cfg, logger, runtime)
			if err != nil {
				logger.Error("build app", "err", err)
				return err
			}
			return a.Run(ctx)
		},
	}
}
