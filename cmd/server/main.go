package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/houzhh15/spm-agent/cmd/server/internal/config"
	"github.com/houzhh15/spm-agent/pkg/logger"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "spm-agent",
		Short:        "AI software product manager backend",
		Long:         `spm-agent turns a project description into a persisted roadmap of modules and tasks using the Gemini API.`,
		Version:      "0.1.0",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

// bootstrap 加载并校验配置，然后初始化全局 logger
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}

	log, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		Format:      cfg.Log.Format,
		WithSource:  !cfg.IsProduction(),
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger init failed: %w", err)
	}
	if cfg.IsDevelopment() {
		log.Debug(cfg.PrintConfig())
	}
	return cfg, log, nil
}
