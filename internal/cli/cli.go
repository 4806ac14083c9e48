package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quizbattle/quizbattle-go/internal/config"
	"github.com/quizbattle/quizbattle-go/internal/factory"
)

// NewRootCommand builds the quizbattle command tree
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "quizbattle",
		Short:         "Real-time multiplayer quiz battle server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newWorkerCommand(&configPath))
	return root
}

// Execute runs the CLI, exiting non-zero on error
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gameplay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger()

			app, err := factory.NewApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("wire application: %w", err)
			}

			if cfg.QuestionsFile != "" {
				if err := app.Questions.LoadFromFile(cmd.Context(), cfg.QuestionsFile); err != nil {
					return fmt.Errorf("load questions: %w", err)
				}
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Server.Start()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				logger.Info("signal received", slog.String("signal", sig.String()))
			}

			ctx := context.Background()
			app.Battle.Shutdown(ctx)
			return app.Server.Shutdown(ctx)
		},
	}
}

func newWorkerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the persistence pipeline worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger()

			worker, err := factory.NewWorker(cfg, logger)
			if err != nil {
				return fmt.Errorf("wire worker: %w", err)
			}
			defer worker.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
