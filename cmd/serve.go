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
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/api"
	"github.com/queryharvest/harvester/internal/dispatcher"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// newServeCmd creates and configures the 'serve' subcommand: the long-running
// HTTP trigger surface plus the queue intake dispatcher.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and queue intake",
		Long: `Starts the HTTP server exposing the harvest trigger, record read-through,
and run progress endpoints, and subscribes to the trigger queue. Runs until
interrupted.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), appInstance)
		},
	}
}

func runServe(ctx context.Context, appInstance App) error {
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatch := dispatcher.New(appInstance.GetQueue(), appInstance, logger.Named("dispatcher"))
	go func() {
		if err := dispatch.Run(ctx); err != nil {
			logger.Error("dispatcher stopped", zap.Error(err))
			stop()
		}
	}()

	apiServer := api.NewServer(
		appInstance,
		appInstance.GetDatabase(),
		appInstance.GetRunRepository(),
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
