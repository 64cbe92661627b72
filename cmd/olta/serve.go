package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/olta-dev/olta/internal/config"
	"github.com/olta-dev/olta/internal/errors"
	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/registry"
	"github.com/olta-dev/olta/pkg/server"
	"github.com/olta-dev/olta/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr     string
		token    string
		driver   string
		dsn      string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session server",
		Long: `Start the websocket session server.

Clients connect to ws://<addr>/ws/<process-id>?token=<token>. The first
message on every connection is a FullSync of the process; every change
made by any client is then broadcast to all clients of that process.

On SIGINT or SIGTERM the server stops accepting connections, closes the
open ones and flushes pending snapshots to the store before exiting.

Examples:
  olta serve
  olta serve --addr=:9000 --token=secret
  olta serve --store=postgres --dsn=postgres://localhost/olta
  olta serve --store=memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Address = addr
			}
			if flags.Changed("token") {
				cfg.Server.Token = token
			}
			if flags.Changed("store") {
				cfg.Store.Driver = driver
			}
			if flags.Changed("dsn") {
				cfg.Store.DSN = dsn
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config, :8080)")
	cmd.Flags().StringVarP(&token, "token", "t", "", "Shared secret clients must pass as ?token=")
	cmd.Flags().StringVar(&driver, "store", "", "Store driver: memory, sqlite, postgres, s3")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Store DSN (database file or URL)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return errors.New("E105").Wrap(err)
	}
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		_ = a.store.Close()
		return errors.New("E140").WithDetail(cfg.Server.Address).Wrap(err)
	}

	printBanner()
	success("Listening on %s", ln.Addr())
	info("Store:   %s", cfg.Store.Driver)
	if cfg.Server.Token == "" {
		warn("No token configured; any client may connect")
	}
	if cfg.Metrics.Enabled {
		info("Metrics: %s", cfg.Metrics.Path)
	}
	fmt.Println()

	return a.run(ctx, ln)
}

// app wires the store, queue, registry and gateway of one server process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    store.Store
	queue    *persist.Queue
	registry *registry.Registry
	server   *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, promReg *prometheus.Registry) (*app, error) {
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(promReg))

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, errors.New("E120").WithDetail(fmt.Sprintf("store.driver is %q", cfg.Store.Driver)).Wrap(err)
	}

	var reg *registry.Registry

	qcfg := cfg.PersistConfig()
	qcfg.Logger = logger
	qcfg.Metrics = m
	qcfg.OnSaved = func(req persist.Request) {
		reg.MarkPersisted(req.SessionID, req.Version)
	}
	q := persist.New(st, qcfg)

	rcfg := cfg.RegistryConfig()
	rcfg.Logger = logger
	rcfg.Metrics = m
	reg = registry.New(st, q, rcfg)

	scfg := cfg.ServerConfig()
	scfg.Logger = logger
	scfg.Metrics = m
	scfg.Gatherer = promReg

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		store:    st,
		queue:    q,
		registry: reg,
		server:   server.New(reg, scfg),
	}, nil
}

// run serves on ln until ctx is done, then shuts down in dependency order:
// gateway, registry, queue drain, store.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	// The worker outlives the gateway so late snapshots are still written.
	queueCtx, cancelQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelQueue()

	var drainErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.queue.Run(queueCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		serveErr := a.server.Serve(gctx, ln)

		_ = a.registry.Close()

		drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Persist.ShutdownTimeout)
		defer cancel()
		if err := a.queue.Shutdown(drainCtx); err != nil {
			a.logger.Error("persistence queue not drained", "pending", a.queue.Len(), "error", err)
			drainErr = errors.New("E141").Wrap(err)
		}
		return serveErr
	})

	err := stderrors.Join(g.Wait(), drainErr)
	if cerr := a.store.Close(); cerr != nil {
		a.logger.Error("close store", "error", cerr)
	}
	if err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
