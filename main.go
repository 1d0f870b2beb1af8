package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/flightmap/tracker/config"
	"github.com/flightmap/tracker/flightmap"
	"github.com/flightmap/tracker/history"
	"github.com/flightmap/tracker/internal/logging"
	"github.com/flightmap/tracker/internal/observability"
	"github.com/flightmap/tracker/opensky"
	"github.com/flightmap/tracker/pipeline"
	"github.com/flightmap/tracker/rbac"
	"github.com/flightmap/tracker/render"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	once := flag.Bool("once", false, "run a single refresh and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closer := logging.New(cfg.Logging)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Error(ctx, "flightmap exited", logging.Err(err))
		stop()
		_ = closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, once bool) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	if err := history.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewPipelineCollector(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	renderer, err := render.New(cfg.Render.Zoom)
	if err != nil {
		return fmt.Errorf("build renderer: %w", err)
	}

	store := history.NewStore(pool, history.Options{
		Timeout: cfg.Database.Timeout,
		MaxRows: cfg.Render.MaxSamples,
	})

	orchestrator := pipeline.New(pipeline.Config{
		Region:         cfg.Region,
		Window:         cfg.Render.Window,
		OutputPath:     cfg.Render.OutputPath,
		IngestInterval: cfg.Schedule.IngestInterval,
		RenderInterval: cfg.Schedule.RenderInterval,
	}, pipeline.Deps{
		Fetcher:  opensky.NewClient(cfg.OpenSky.URL, cfg.OpenSky.Timeout),
		Store:    store,
		Renderer: renderer,
		Logger:   logger.With(logging.String("component", "pipeline")),
		Metrics:  metrics,
	})

	if once {
		_, err := orchestrator.Refresh(ctx)
		return err
	}

	resolver := rbac.TokenResolver(cfg.Server.OperatorToken)
	enforcer := rbac.NewEnforcer(resolver)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", metrics.Handler())
	router.Mount("/api/rbac", rbac.NewHandler(resolver).Routes())
	router.Mount("/", flightmap.NewHandler(orchestrator, store,
		logger.With(logging.String("component", "http")), cfg.Render.Window).Routes(enforcer))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "listening", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Schedule.Enabled {
		g.Go(func() error {
			return orchestrator.Run(gctx)
		})
	} else {
		logger.Info(ctx, "scheduler disabled, refresh on demand only")
	}

	return g.Wait()
}
