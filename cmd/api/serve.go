package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-email-verification/internal/application/verification"
	"github.com/go-email-verification/internal/config"
	transporthttp "github.com/go-email-verification/internal/transport/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg())
		},
	}
}

func newWorkerCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume verification emails from NATS without serving HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), cfg())
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext(parent)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	svc := verification.NewService(verification.ServiceDeps{
		Records:   app.records,
		Codec:     app.codec,
		Queue:     app.queue,
		VerifyURL: cfg.VerifyURL,
		Metrics:   app.metrics,
	})
	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Verification: svc,
		Metrics:      app.metrics,
		Gatherer:     app.registry,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"store", cfg.StoreDriver, "dispatch", cfg.Dispatch.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	app.close(shutdownCtx)
	slog.Info("server stopped")
	return nil
}

func runWorker(parent context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Dispatch.Backend != "nats" {
		return errors.New("worker requires DISPATCH_BACKEND=nats")
	}
	if !cfg.MailConfigured() {
		return errors.New("worker requires SMTP_HOST")
	}
	ctx, stop := signalContext(parent)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("worker consuming", "subject", cfg.Dispatch.NATSSubject, "durable", cfg.Dispatch.NATSDurable)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.close(shutdownCtx)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
