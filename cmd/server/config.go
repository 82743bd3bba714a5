package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/resource-api/internal/config"
	"github.com/phrazzld/resource-api/internal/platform/logger"
)

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_driver", cfg.Storage.Driver)
	if cfg.Storage.DatabaseURL != "" {
		log.Debug("database configuration", "url_present", true)
	}
	if cfg.Storage.MongoURI != "" {
		log.Debug("mongo configuration", "uri_present", true)
	}

	return cfg, log, nil
}
