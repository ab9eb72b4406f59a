package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dermot10/reverse-proxy/internal/config"
	"github.com/Dermot10/reverse-proxy/internal/observability"
)

type serveOptions struct {
	address string
	port    int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy HTTP server",
		Long: `Run the proxy HTTP server and, when enabled, the metrics server.

The route table is read once at startup. Changes to the configuration file
are detected and reported but take effect only after a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.address != "" {
				cfg.Server.Address = opts.address
			}
			if opts.port != 0 {
				cfg.Server.Port = opts.port
			}

			logger, err := initLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, root.configPath, logger)
		},
	}

	cmd.Flags().StringVar(&opts.address, "address", "", "listen address (overrides server.address)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

// runServe starts all servers and blocks until ctx is done or a server
// fails, then shuts everything down.
func runServe(ctx context.Context, cfg *config.Config, configPath string, logger observability.Logger) error {
	logger.Info("starting reverse-proxy",
		observability.String("version", version),
		observability.String("config", configPath),
		observability.Int("routes", len(cfg.Routes)),
	)

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.server.Start(ctx)
	}()
	if app.metricsServer != nil {
		go func() {
			if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", observability.Error(err))
			}
		}()
	}

	watcher := startConfigWatcher(ctx, app, configPath)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("proxy server failed", observability.Error(serveErr))
		}
	}

	shutdown(app, watcher)
	return serveErr
}

// startConfigWatcher reports configuration file changes. The running route
// table is never replaced.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	if configPath == "" {
		return nil
	}
	logger := app.logger

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		app.metrics.RecordConfigChange()
		logger.Warn("configuration file changed; restart to apply route changes",
			observability.String("path", configPath),
			observability.Int("routes_configured", len(newCfg.Routes)),
			observability.Int("routes_active", app.routes.Len()),
		)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Warn("changed configuration file is invalid", observability.Error(err))
		}),
	)
	if err != nil {
		logger.Warn("failed to create configuration watcher", observability.Error(err))
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start configuration watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}
	return watcher
}

// shutdown stops every component, marking the process not ready first.
func shutdown(app *application, watcher *config.Watcher) {
	logger := app.logger
	app.healthChecker.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop proxy server gracefully", observability.Error(err))
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("reverse-proxy stopped")
}
