package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/italypaleale/timekeeper/config"
	"github.com/italypaleale/timekeeper/history"
	"github.com/italypaleale/timekeeper/observability"
	"github.com/italypaleale/timekeeper/scheduler"
	"github.com/italypaleale/timekeeper/server"
	slogkit "github.com/italypaleale/timekeeper/slog"
	"github.com/italypaleale/timekeeper/spool"
	"github.com/italypaleale/timekeeper/tsnetserver"
)

const appName = "timekeeper"

// Set at build time
var version = "dev"

func main() {
	// Init a logger used for initialization only, to report initialization errors
	initLogger := slog.Default().
		With(slog.String("app", appName)).
		With(slog.String("version", version))

	cfg, err := config.Load()
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			ce.LogFatal(initLogger)
		}
		slogkit.FatalError(initLogger, "Failed to load configuration", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, logsShutdown, err := observability.InitLogs(ctx, observability.InitLogsOpts{
		Config:     cfg,
		AppName:    appName,
		AppVersion: version,
		Level:      cfg.LogLevel,
		JSON:       cfg.LogAsJSON,
	})
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			ce.LogFatal(initLogger)
		}
		slogkit.FatalError(initLogger, "Failed to initialize logs", err)
		return
	}
	slog.SetDefault(log)
	log.InfoContext(ctx, "Starting timekeeper", slog.String("config", cfg.GetLoadedConfigPath()))

	err = run(ctx, log, cfg)

	// Use a background context for shutting down the log provider, as ctx is canceled at this point
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logsShutdown(shutdownCtx)

	if err != nil {
		slogkit.FatalError(log, "Error running timekeeper", err)
		return
	}
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Config) error {
	meter, metricsShutdown, err := observability.InitMetrics(ctx, observability.InitMetricsOpts{
		Config:  cfg,
		AppName: appName,
		Prefix:  "timekeeper",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	tracer, tracesShutdown, err := observability.InitTraces(ctx, observability.InitTracesOpts{
		Config:  cfg,
		AppName: appName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize traces: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := errors.Join(metricsShutdown(shutdownCtx), tracesShutdown(shutdownCtx))
		if err != nil {
			log.Warn("Failed to shut down OpenTelemetry providers", slog.Any("error", err))
		}
	}()

	hist := history.New(&history.Options{
		Retention:       cfg.History.Retention,
		CleanupInterval: cfg.History.CleanupInterval,
	})
	defer hist.Stop()

	sched, err := scheduler.NewScheduler(scheduler.Options{
		Workers:            cfg.Scheduler.Workers,
		WakeBufferSize:     cfg.Scheduler.WakeBufferSize,
		DispatchBufferSize: cfg.Scheduler.DispatchBufferSize,
		OnDispatch:         hist.Record,
		Logger:             log,
		Meter:              meter,
		Tracer:             tracer,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	// Close the scheduler before the history is stopped
	defer func() {
		_ = sched.Close()
	}()

	srv, err := server.New(server.Options{
		Scheduler:   sched,
		History:     hist,
		Logger:      log,
		HostID:      cfg.GetInstanceID(),
		MaxBodySize: cfg.Server.MaxBodySize,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ln, closeListener, err := listen(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeListener()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, ln)
	})

	if cfg.SpoolDir != "" {
		watcher, err := spool.NewWatcher(spool.Options{
			Dir:       cfg.SpoolDir,
			Submitter: sched,
			Logger:    log,
		})
		if err != nil {
			return fmt.Errorf("failed to create spool watcher: %w", err)
		}
		group.Go(func() error {
			return watcher.Run(groupCtx)
		})
	}

	return group.Wait()
}

// listen returns the listener for the HTTP server: on the tailnet if Tailscale is enabled, or on a local TCP port otherwise.
func listen(ctx context.Context, log *slog.Logger, cfg *config.Config) (net.Listener, func(), error) {
	if !cfg.Tailscale.Enabled {
		addr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return ln, func() {}, nil
	}

	ts, err := tsnetserver.NewTSNetServer(ctx, log, cfg.Tailscale)
	if err != nil {
		return nil, nil, err
	}
	ln, err := ts.Listen(cfg.Tailscale.Port)
	if err != nil {
		_ = ts.Close()
		return nil, nil, err
	}
	log.InfoContext(ctx, "Listening on the tailnet", slog.String("hostname", ts.Hostname()), slog.Int("port", cfg.Tailscale.Port))

	return ln, func() {
		err := ts.Close()
		if err != nil {
			log.Warn("Failed to close Tailscale node", slog.Any("error", err))
		}
	}, nil
}
