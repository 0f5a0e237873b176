package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/me/postpilot/internal/config"
	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/internal/feedback"
	"github.com/me/postpilot/internal/generator"
	"github.com/me/postpilot/internal/logging"
	"github.com/me/postpilot/internal/metrics"
	"github.com/me/postpilot/internal/prompt"
	"github.com/me/postpilot/internal/scheduler"
	"github.com/me/postpilot/internal/server"
	"github.com/me/postpilot/internal/store"
)

func main() {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultServerConfig()
	if err := cfg.ApplyEnv(nil); err != nil {
		fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.postpilot/postpilot.db)")
	flag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML file with engine config, templates and slots (watched for changes)")
	flag.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA timezone for schedule dates and slot windows")
	flag.DurationVar(&cfg.PlanInterval, "plan-interval", cfg.PlanInterval, "How often the plan driver runs")
	flag.IntVar(&cfg.PlanAheadDays, "plan-ahead", cfg.PlanAheadDays, "Days after today planned on each pass")
	flag.StringVar(&cfg.GeneratorURL, "generator-url", cfg.GeneratorURL, "Content generator base URL (empty uses the local generator)")
	flag.DurationVar(&cfg.GeneratorTimeout, "generator-timeout", cfg.GeneratorTimeout, "Content generator request timeout")
	flag.StringVar(&cfg.PromptLib, "prompt-lib", cfg.PromptLib, "JavaScript file loaded before prompt expressions")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	noScheduler := flag.Bool("no-scheduler", false, "Serve the API only; plan and execute are triggered through it")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := run(cfg, !*noScheduler); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, withScheduler bool) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(level, cfg.LogFormat)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir := filepath.Join(home, ".postpilot")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		dbPath = filepath.Join(dir, "postpilot.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", dbPath)

	m := metrics.New()

	// Seed and configure from the YAML file before anything reads the store.
	var watcher *config.Watcher
	if cfg.ConfigFile != "" {
		watcher = config.NewWatcher(cfg.ConfigFile, st, m, logger)
		if !watcher.Reload(context.Background()) {
			return fmt.Errorf("config file %s could not be applied", cfg.ConfigFile)
		}
	}

	var gen generator.Generator
	if cfg.GeneratorURL != "" {
		gen = generator.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorTimeout, logger)
		logger.Info("using HTTP content generator", "url", cfg.GeneratorURL)
	} else {
		gen = generator.NewLocalGenerator(logger)
		logger.Warn("no generator URL configured; using the local generator")
	}

	var lib []string
	if cfg.PromptLib != "" {
		src, err := os.ReadFile(cfg.PromptLib)
		if err != nil {
			return fmt.Errorf("read prompt lib: %w", err)
		}
		lib = append(lib, string(src))
	}

	eng := engine.New(st, gen, logger,
		engine.WithLocation(loc),
		engine.WithMetrics(m),
		engine.WithRenderer(prompt.NewRenderer(lib...)),
	)
	ingester := feedback.NewIngester(st, m, logger)

	srvOpts := []server.Option{server.WithMetrics(m)}
	var sched *scheduler.Loop
	if withScheduler {
		sched = scheduler.NewLoop(eng, st, scheduler.Config{
			PlanInterval:            cfg.PlanInterval,
			PlanAheadDays:           cfg.PlanAheadDays,
			FallbackExecuteInterval: scheduler.DefaultConfig().FallbackExecuteInterval,
		}, m, logger)
		srvOpts = append(srvOpts, server.WithScheduler(sched))
	}
	srv := server.New(cfg, st, eng, ingester, logger, srvOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr, "timezone", loc.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sched != nil {
		g.Go(func() error {
			if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
