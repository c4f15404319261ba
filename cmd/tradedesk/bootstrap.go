package main

import (
	"fmt"

	"github.com/newthinker/tradedesk/internal/app"
	"github.com/newthinker/tradedesk/internal/config"
	"github.com/newthinker/tradedesk/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadConfig reads the config file, or defaults when none is given, and
// applies the command line overrides.
func loadConfig(override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// startApp builds the app and restores the persisted session. The returned
// func flushes metrics and the logger and must always be called.
func startApp(cmd *cobra.Command, override func(*config.Config)) (*app.App, func(), error) {
	cfg, err := loadConfig(override)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Development: cfg.Log.Development,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Warn("closing app", zap.Error(err))
		}
		log.Sync()
	}

	if err := a.Start(cmd.Context()); err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}
