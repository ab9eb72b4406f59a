package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dermot10/reverse-proxy/internal/config"
	"github.com/Dermot10/reverse-proxy/internal/observability"
)

// rootOptions holds the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "reverse-proxy",
		Short: "Reverse proxy with response rewriting",
		Long: `reverse-proxy forwards requests to a fixed table of upstream services.

Each request is validated, routed by exact path, sent upstream, parsed by
content type and, for HTML and text answers, optionally rewritten: the page
title can be replaced and literal text substitutions applied.

Without --config the built-in route table is used.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getEnvOrDefault(envConfigPath, ""),
		"path to configuration file (env "+envConfigPath+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", getEnvOrDefault(envLogLevel, ""),
		"log level: debug, info, warn, error (env "+envLogLevel+")")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", getEnvOrDefault(envLogFormat, ""),
		"log format: json, console (env "+envLogFormat+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newInvokeCmd(opts),
		newRoutesCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads the configured file, or the defaults, applies flag
// overrides and validates the result.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}
	o.applyOverrides(cfg)

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) applyOverrides(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
}

// initLogger builds the process logger and installs it globally.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	observability.SetGlobalLogger(logger)
	observability.RouteOTelDiagnostics(logger)
	return logger, nil
}
