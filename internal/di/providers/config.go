// Package providers contains dependency injection providers for the FuelUp sync server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// LoggerHandle closes the rotated log file on shutdown.
type LoggerHandle struct {
	*logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File:        cfg.Logger.File,
		MaxSizeMB:   cfg.Logger.MaxSizeMB,
		MaxBackups:  cfg.Logger.MaxBackups,
	})

	log.Info("Starting FuelUp sync server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.Path,
		"store_driver", cfg.Store.Driver,
	)

	return &LoggerHandle{Logger: log}, nil
}
