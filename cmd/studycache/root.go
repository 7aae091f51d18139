package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/studycache/internal/config"
	"github.com/phrazzld/studycache/internal/platform/logger"
	"github.com/phrazzld/studycache/internal/version"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "studycache",
		Short:         "Persisted query cache and review scoring for the study-aid backend",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"path to a YAML config file (environment variables prefixed with "+config.EnvPrefix+"_ override it)")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newCacheCmd(c),
		newReviewCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(logger.LoggerConfig{
		Level:  cfg.Server.LogLevel,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"command", cmd.Name(),
		"cache_driver", cfg.Cache.Driver,
		"cache_version", cfg.Cache.Version,
		"tracing_enabled", cfg.Tracing.Endpoint != "")

	c.cfg = cfg
	c.logger = log
	return nil
}
