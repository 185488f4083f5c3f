package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/delivery/http/handler"
	"github.com/user/harvester/internal/delivery/http/router"
	"github.com/user/harvester/internal/usecase"
	"github.com/user/harvester/pkg/config"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API: item status, triggered runs and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := setup(cmd, root,
				config.WithFlag("SERVER_PORT", cmd.Flags().Lookup("port")),
			)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			tracker := usecase.NewRunTracker(ctx, knownSources, a.run, logger)
			h := handler.NewHandler(usecase.NewStatusService(a.content, logger), tracker, logger)

			server := &http.Server{
				Addr:         ":" + cfg.ServerPort,
				Handler:      router.New(h, logger),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 35 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("port", cfg.ServerPort))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("server forced to shutdown", zap.Error(err))
			}
			// Triggered runs see the cancelled context and release their locks.
			tracker.Wait()
			logger.Info("server exiting")
			return nil
		},
	}
	cmd.Flags().String("port", "8080", "listen port")
	return cmd
}
