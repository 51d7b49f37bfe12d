package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"aiscam-svr/internal/capture"
	"aiscam-svr/internal/clock"
	"aiscam-svr/internal/config"
	"aiscam-svr/internal/dispatcher"
	"aiscam-svr/internal/influx"
	"aiscam-svr/internal/link"
	"aiscam-svr/internal/observability"
	"aiscam-svr/internal/pipeline"
	"aiscam-svr/internal/rawlog"
	"aiscam-svr/internal/scheduler"
	"aiscam-svr/internal/server"
	"aiscam-svr/internal/store"
	"aiscam-svr/internal/vessel"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("aiscam-svr stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("Starting aiscam-svr...",
		"port", cfg.TCPPort,
		"observer_lat", cfg.Observer.Lat,
		"observer_lon", cfg.Observer.Lon,
		"bearing", cfg.Observer.Bearing,
		"cache", cfg.Cache.Backend)

	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	if closeCache != nil {
		defer closeCache.Close()
	}

	storeOpts := []vessel.Option{vessel.WithLogger(logger)}
	if cache != nil {
		storeOpts = append(storeOpts, vessel.WithCache(cache))
	}
	vessels := vessel.NewStore(storeOpts...)

	proxy := link.New(cfg.Link.ProxyAddr, logger)
	recorder := influx.New(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, logger)
	defer recorder.Close()

	var sinks []capture.Sink
	if cfg.Camera.GRPCAddr != "" {
		camera, err := capture.NewGRPCSink(cfg.Camera.GRPCAddr)
		if err != nil {
			return fmt.Errorf("camera sink: %w", err)
		}
		defer camera.Close()
		sinks = append(sinks, camera)
	}
	var publishers []pipeline.Publisher
	if proxy != nil {
		sinks = append(sinks, proxy)
		publishers = append(publishers, proxy)
	}
	if recorder != nil {
		sinks = append(sinks, recorder)
		publishers = append(publishers, recorder)
	}
	if len(sinks) == 0 {
		logger.Warn("no capture sinks configured, captures are only logged")
	}

	captures := capture.NewDispatcher(vessels,
		capture.WithSinks(sinks...),
		capture.WithTimeout(cfg.Camera.Timeout),
		capture.WithLogger(logger))

	sched := scheduler.New(cfg.SchedulerConfig(), vessels, captures, clock.RealClock{}, logger)
	defer sched.Stop()
	vessels.Subscribe(sched.OnUpdate)

	if len(publishers) > 0 {
		feed := pipeline.NewFeed(vessels, clock.RealClock{}, publishers...)
		vessels.Subscribe(feed.OnUpdate)
	}

	ingestOpts := []dispatcher.Option{dispatcher.WithLogger(logger)}
	if archive := rawlog.New(cfg.RawLog.Dir, "AIS", clock.RealClock{}, logger); archive != nil {
		defer archive.Close()
		ingestOpts = append(ingestOpts, dispatcher.WithArchive(archive))
	}
	ingestor := dispatcher.NewIngestor(vessels, ingestOpts...)

	// workers stop before the deferred closes run
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(3)
	go func() { defer wg.Done(); _ = ingestor.Run(ctx) }()
	go func() { defer wg.Done(); captures.Run(ctx) }()
	go func() {
		defer wg.Done()
		if err := observability.StartMetricsServer(ctx, cfg.MetricsPort); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	if proxy != nil {
		wg.Add(1)
		go func() { defer wg.Done(); proxy.Run(ctx) }()
	}

	if err := server.Start(ctx, ":"+cfg.TCPPort, ingestor, logger); err != nil {
		return fmt.Errorf("TCP server failed: %w", err)
	}
	logger.Info("shutting down", "vessels", vessels.Len(), "armed", sched.Len())
	return nil
}

// openCache returns a nil cache for backend "none".
func openCache(ctx context.Context, cfg config.Config) (vessel.StaticCache, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "redis":
		r, err := store.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis init failed: %w", err)
		}
		return r, r, nil
	case "sqlite", "postgres":
		open := func() (*store.SQL, error) {
			if cfg.Cache.Backend == "sqlite" {
				db, err := store.OpenSQLite(cfg.SQLite.Path)
				if err != nil {
					return nil, err
				}
				return store.NewSQL(db)
			}
			db, err := store.OpenPostgres(cfg.Postgres.DSN)
			if err != nil {
				return nil, err
			}
			return store.NewSQL(db)
		}
		s, err := open()
		if err != nil {
			return nil, nil, fmt.Errorf("%s init failed: %w", cfg.Cache.Backend, err)
		}
		return s, s, nil
	default:
		return nil, nil, nil
	}
}
