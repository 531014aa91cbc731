package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"helpt/internal/adapters"
	"helpt/internal/models"
	"helpt/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive GitHub and Trello webhooks",
	Long: `Serve the webhook endpoints:

  POST /webhooks/github/          GitHub organization events
  HEAD|GET|POST /webhooks/trello/ Trello board events
  GET  /healthz                   Liveness probe

Each event triggers a scoped resync of the affected repository, issue,
board or card.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore()
	factory := func(ds *models.DataSource) (adapters.Adapter, error) {
		return newAdapter(store, ds)
	}
	srv := webhook.NewServer(store, factory, webhook.WithLogger(logger))

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server shutdown: %w", err)
	}
	return nil
}
