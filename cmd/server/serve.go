package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpDelivery "github.com/scontrini/backend/internal/delivery/http"
	"github.com/scontrini/backend/internal/infrastructure/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the normalization HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger

			logger.Info("starting scontrini backend",
				zap.String("environment", cfg.Server.Environment),
				zap.String("port", cfg.Server.Port),
				zap.String("store", cfg.Store.Type),
				zap.String("model", cfg.LLM.Model))

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			recorder := metrics.NewPipeline()
			p, err := buildPipeline(runCtx, cfg, seedPath, recorder, logger)
			if err != nil {
				return err
			}
			defer p.Close()
			recorder.WatchInterpretationCache(p.interpretations.Size)

			handler := httpDelivery.NewHandler(p.normalizer, logger)
			router := httpDelivery.SetupRouter(cfg, handler, logger, recorder.Handler())

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-runCtx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML catalog seed to import before serving")
	return cmd
}
