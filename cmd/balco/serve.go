package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/balco-dev/balco/internal/config"
	"github.com/balco-dev/balco/internal/errors"
	"github.com/balco-dev/balco/pkg/middleware"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/router"
	"github.com/balco-dev/balco/pkg/server"
	"github.com/balco-dev/balco/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		port       int
		configPath string
		store      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the room server",
		Long: `Start the WebSocket room server.

Settings come from balco.json (if present), then environment
variables, then these flags.

Examples:
  balco serve
  balco serve --port=8080
  PORT=8080 BALCO_STORE=sqlite balco serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, func(c *config.Config) {
				if port != 0 {
					c.Port = port
				}
				if store != "" {
					c.Store.Kind = store
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config or PORT)")
	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to the config file")
	cmd.Flags().StringVar(&store, "store", "", "Store kind: file, sqlite, s3 or memory")

	return cmd
}

// loadConfig resolves the file and environment, applies flag overrides and
// validates the result.
func loadConfig(path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return serveBackend(ctx, cfg, logger, backend)
}

// serveBackend runs the server over an open backend until ctx is cancelled.
// The backend is closed on every return path.
func serveBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, backend roomstore.Backend) error {
	store := roomstore.New(backend, roomstore.WithLogger(logger))
	loaded := store.Load(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))

	r := router.New(store, session.NewRegistry(),
		router.WithLogger(logger),
		router.WithInboxSize(cfg.Session.InboxSize),
		router.WithMiddleware(
			middleware.Recover(logger),
			metrics.Middleware(),
			middleware.OpenTelemetry(),
		),
		router.WithHooks(metrics.Hooks()),
	)

	srv := server.New(r, cfg.ServerConfig(),
		server.WithLogger(logger),
		server.WithMetrics(metrics, reg),
	)

	logger.Info("starting balco",
		"version", version,
		"address", cfg.Address(),
		"store", cfg.Store.String(),
		"rooms_loaded", loaded)

	if err := srv.Run(ctx); err != nil {
		var opErr *net.OpError
		if stderrors.As(err, &opErr) && opErr.Op == "listen" {
			// Nothing was served, so only the backend needs releasing.
			if cerr := backend.Close(); cerr != nil {
				logger.Warn("closing store backend failed", "error", cerr)
			}
			return errors.New(errors.CodeListen).Wrap(err).
				WithSuggestion("Choose another port with --port or PORT")
		}
		return errors.New(errors.CodeServe).Wrap(err)
	}
	logger.Info("balco stopped")
	return nil
}
