package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

var (
	// ConfigPathFlag points at the YAML config. Defaults and environment
	// overrides apply when it is omitted.
	ConfigPathFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to the YAML config file",
		EnvVars: []string{"SIGNFLOW_CONFIG"},
	}

	// VerbosityFlag overrides log.level from the config.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "logging verbosity (debug, info, warn, error)",
	}

	// LogFormatFlag overrides log.format from the config.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "log output format: json or text",
	}
)

var CommonFlags = []cli.Flag{ConfigPathFlag, VerbosityFlag, LogFormatFlag}

// LoadConfig reads the config named by the flags and installs the logger.
func LoadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(ConfigPathFlag.Name))
	if err != nil {
		return config.Config{}, err
	}
	if v := c.String(VerbosityFlag.Name); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String(LogFormatFlag.Name); v != "" {
		cfg.Log.Format = v
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}
