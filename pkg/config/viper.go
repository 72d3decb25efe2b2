// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/queryharvest/harvester/internal/config"
	"github.com/queryharvest/harvester/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup so configuration is loaded and available to all
// other packages.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")                 // Current working directory
		viper.AddConfigPath("/etc/harvester/")   // System-wide configuration
		viper.AddConfigPath("$HOME/.harvester")  // User-specific configuration
	}

	internalconfig.SetDefaults(viper.GetViper())

	// e.g., HARVESTER_SEARCH_MAX_PAGES=5
	viper.SetEnvPrefix("HARVESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults and environment variables still
			// give a workable configuration.
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
