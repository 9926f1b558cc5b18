package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CoachChat/internal/devserver"

	"github.com/spf13/cobra"
)

func newDevServerCmd() *cobra.Command {
	var (
		addr   string
		accept string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local coaching backend for development",
		Long: `Run an in-memory coaching backend that walks sessions through
incomplete, plan_ready and week1. Point the client at it with --base-url.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			srv := &http.Server{
				Addr:              addr,
				Handler:           devserver.New(devserver.Options{Token: accept, Logger: logger}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("dev backend listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("dev backend: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown dev backend: %w", err)
			}
			logger.Info("dev backend stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&accept, "accept-token", "", "Only accept this bearer token (default: any)")
	return cmd
}
