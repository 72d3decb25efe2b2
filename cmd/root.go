// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/app"
	"github.com/queryharvest/harvester/internal/config"
	"github.com/queryharvest/harvester/internal/database"
	"github.com/queryharvest/harvester/internal/harvest"
	"github.com/queryharvest/harvester/internal/logging"
	"github.com/queryharvest/harvester/internal/queue"
	"github.com/queryharvest/harvester/internal/store"
	pkgconfig "github.com/queryharvest/harvester/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Keeping it an
// interface lets the tests inject a mock app through the newApp factory.
type App interface {
	Run(ctx context.Context, queries []string) (harvest.RunSummary, error)
	Close(ctx context.Context)
	GetLogger() *zap.Logger
	GetDatabase() database.Provider
	GetQueue() queue.Provider
	GetRunRepository() store.RunRepository
	GetConfig() config.Config
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A search-result harvesting pipeline.",
		Long: `harvester collects search listings for a batch of queries, deduplicates
them against a seen-URL registry, persists and exports the survivors, and
fetches each page's content through a bounded worker pool.`,

		// Runs after flag parsing but before the subcommand's RunE: load
		// config, build the logger, then assemble the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Encoding)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Ensures services shut down gracefully after the subcommand exits.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cobra.OnInitialize(func() { pkgconfig.InitConfig(cfgFile) })

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/harvester, $HOME/.harvester)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp retrieves the App injected by PersistentPreRunE.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not found in context")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
