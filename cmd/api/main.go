package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-email-verification/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "email-verification",
		Short:         "Email ownership verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				fmt.Fprintln(os.Stderr, "No .env file found, reading from environment")
			}
			cfg = config.Load()
			slog.SetDefault(newLogger(cfg.AppEnv))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cfgFn := func() *config.Config { return cfg }
	cmd.AddCommand(newServeCommand(cfgFn))
	cmd.AddCommand(newWorkerCommand(cfgFn))
	cmd.AddCommand(newBootstrapCommand(cfgFn))
	return cmd
}

// newLogger writes JSON in production and human-readable text elsewhere.
func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
