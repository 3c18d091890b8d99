package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/4thel00z/haconf/internal/api"
	"github.com/4thel00z/haconf/internal/sse"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the versioned configuration over HTTP, with a server-sent event stream of
new snapshots at /api/events and Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: makeServeRunner(a),
	}

	cmd.Flags().Int("port", 0, "Listen port (default from config)")
	cmd.Flags().Bool("watch", false, "Also snapshot edits made outside the API")
	return cmd
}

func makeServeRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		core, err := a.open(cmd)
		if err != nil {
			return err
		}
		uc, err := a.useCases(cmd)
		if err != nil {
			return err
		}
		cfg := core.Config
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.HTTP.Port = port
		}
		watch, _ := cmd.Flags().GetBool("watch")
		logger := core.Logger

		broker := sse.NewBroker()
		defer broker.Close()
		core.Serializer.OnCommit(api.CommitEvents(broker))

		httpServer := &http.Server{
			Addr:              cfg.HTTP.Address(),
			Handler:           api.NewServer(uc, cfg.HTTP.Token, broker, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if cfg.HTTP.Token == "" {
			logger.Warn("HTTP auth disabled, no token configured")
		}

		g, gCtx := errgroup.WithContext(cmd.Context())

		if watch {
			g.Go(func() error {
				return core.Watcher().Run(gCtx)
			})
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down")
			// Ends open event streams so Shutdown does not wait on them.
			broker.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})

		return g.Wait()
	}
}
