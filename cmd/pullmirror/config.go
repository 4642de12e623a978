package main

import (
	"github.com/ligustah/pullmirror/internal/config"
	"github.com/ligustah/pullmirror/internal/logging"
)

// loadConfig resolves configuration with precedence
// flags > environment > file > defaults.
func loadConfig(gf *globalFlags, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if gf.configFile != "" {
		fileCfg, err := config.LoadFromFile(gf.configFile)
		if err != nil {
			return config.Config{}, withCode(ExitInvalidArgs, err)
		}
		cfg = fileCfg
	}

	if err := config.LoadDotEnv(gf.envFiles...); err != nil {
		return config.Config{}, withCode(ExitInvalidArgs, err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, withCode(ExitInvalidArgs, err)
	}

	override.Log = config.LogConfig{
		Level:  gf.logLevel,
		Format: gf.logFormat,
		File:   gf.logFile,
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, withCode(ExitInvalidArgs, err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}
