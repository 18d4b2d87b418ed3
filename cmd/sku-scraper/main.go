package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/detect"
	"github.com/maltedev/sku-scraper/internal/extract"
	"github.com/maltedev/sku-scraper/internal/humanize"
	"github.com/maltedev/sku-scraper/internal/input"
	"github.com/maltedev/sku-scraper/internal/lifecycle"
	"github.com/maltedev/sku-scraper/internal/logger"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
	"github.com/maltedev/sku-scraper/internal/retry"
	"github.com/maltedev/sku-scraper/internal/scheduler"
	"github.com/maltedev/sku-scraper/internal/scraper"
	"github.com/maltedev/sku-scraper/internal/server"
	"github.com/maltedev/sku-scraper/internal/sink"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "SKU list (JSON, {\"skus\":[{\"Type\":...,\"SKU\":...}]})")
		outputPath = flag.String("output", "", "CSV file records are appended to")
		eventsPath = flag.String("errors", "", "Event log file")
		resume     = flag.Bool("resume", false, "Skip tasks already present in the output or completed in the checkpoint")
		httpAddr   = flag.String("http", "", "Serve health, metrics and run status on this address (host:port)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *inputPath != "" {
		cfg.Run.InputPath = *inputPath
	}
	if *outputPath != "" {
		cfg.Run.OutputPath = *outputPath
	}
	if *eventsPath != "" {
		cfg.Run.EventLogPath = *eventsPath
	}
	if *httpAddr != "" {
		host, port, err := net.SplitHostPort(*httpAddr)
		if err != nil {
			log.Fatalf("Invalid -http address: %v", err)
		}
		cfg.Server.Enabled = true
		cfg.Server.Host, cfg.Server.Port = host, port
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resume, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, resume bool, logger *slog.Logger) error {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	tasks, err := input.Load(cfg.Run.InputPath)
	if err != nil {
		return err
	}
	total := len(tasks)

	csvSink := sink.NewCSV(cfg.Run.OutputPath)
	store, err := checkpoint.Open(cfg.Run.CheckpointPath)
	if err != nil {
		return err
	}

	if resume {
		done, err := csvSink.CompletedKeys()
		if err != nil {
			return err
		}
		tasks = store.Filter(skipDone(tasks, done))
		logger.Info("resuming run", "remaining", len(tasks), "skipped", total-len(tasks))
	}
	if err := store.Track(tasks); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	coord := lifecycle.New(logger)
	defer func() {
		if err := coord.Shutdown(); err != nil {
			logger.Error("shutdown finished with errors", "error", err)
		}
	}()

	m := metrics.New()
	events := sink.NewEventLog(cfg.Run.EventLogPath)

	secondaries, err := openSecondarySinks(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	out := sink.NewMulti(csvSink, logger, secondaries...)
	coord.Register("sinks", out.Close)

	targets, classes, err := buildTargets(cfg, catalog, coord, logger)
	if err != nil {
		return err
	}

	scr := scraper.New(targets, scraper.Deps{
		Detector: detect.New(catalog.Markers(), logger),
		Human:    humanize.New(humanize.Config{NavTimeout: cfg.Run.NavTimeout}, logger),
		Events:   events,
		Progress: store,
		Metrics:  m,
	}, scraper.Options{
		NavTimeout:      cfg.Run.NavTimeout,
		SelectorTimeout: cfg.Run.SelectorTimeout,
		WarmUp:          cfg.Run.WarmUp,
		BypassSettle:    3 * time.Second,
		Retry: retry.Policy{
			Retries:   cfg.Run.Retries,
			BaseDelay: cfg.Run.BaseDelay,
			MaxJitter: time.Second,
		},
		Profiles: catalog.Profiles,
	}, logger)

	sched := scheduler.New(scheduler.Config{
		BatchSize:          cfg.Run.BatchSize,
		CooldownMin:        cfg.Run.CooldownMin,
		CooldownMax:        cfg.Run.CooldownMax,
		DefaultConcurrency: 1,
		Classes:            classes,
	}, logger)

	tracker := server.NewTracker(runID, len(tasks))
	tracker.Stats = store.Stats
	sched.OnResult = tracker.Observe
	sched.OnBatch = scraper.Persist(out, store)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, tracker, m.Registry, logger)
		srv.Start()
		coord.Register("status server", srv.Shutdown)
	}

	note(events, logger, fmt.Sprintf("run %s started with %d tasks", runID, len(tasks)))

	summary, err := sched.Run(ctx, tasks, scr.Run)
	summary.Skipped += total - len(tasks)
	tracker.Finish(summary, err)

	note(events, logger, fmt.Sprintf("run %s finished: %d succeeded, %d failed, %d skipped",
		runID, summary.Succeeded, summary.Failed, summary.Skipped))
	logger.Info("run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"batches", summary.Batches,
		"output", csvSink.Path(),
	)

	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("run interrupted")
	}
	return nil
}

// buildTargets wires each configured retailer to its catalog entry and its
// session or fetch strategy. Retailers without a catalog entry are skipped.
func buildTargets(cfg *config.Config, catalog *config.Catalog, coord *lifecycle.Coordinator, logger *slog.Logger) (map[models.Retailer]scraper.Target, []scheduler.Class, error) {
	targets := make(map[models.Retailer]scraper.Target)
	var classes []scheduler.Class

	headers := browser.DefaultOptions().ExtraHeaders

	var factory *browser.Factory
	for retailer, class := range cfg.Classes {
		spec, ok := catalog.Retailer(retailer)
		if !ok {
			logger.Warn("no catalog entry for retailer, skipping", "retailer", retailer)
			continue
		}

		limiter := ratelimit.NewAdaptiveRateLimiter(class.DelayMin, class.DelayMax)
		target := scraper.Target{
			Spec:    spec,
			Bypass:  class.Bypass,
			Limiter: limiter,
		}

		if class.Fetch == config.FetchHTTP {
			target.Fetcher = extract.NewFetcher(cfg.Browser.Timeout, headers, logger)
		} else {
			if factory == nil {
				mode, err := browser.ParseMode(cfg.Browser.Mode)
				if err != nil {
					return nil, nil, err
				}
				factory, err = browser.NewFactory(&browser.Options{
					Mode:         mode,
					Headless:     cfg.Browser.Headless,
					Channel:      cfg.Browser.Channel,
					CDPEndpoint:  cfg.Browser.CDPEndpoint,
					ProfileDir:   cfg.Browser.ProfileDir,
					ProxyServer:  cfg.Browser.ProxyServer,
					Timeout:      cfg.Browser.Timeout,
					ExtraHeaders: headers,
					Profiles:     catalog.Profiles,
				}, coord, logger)
				if err != nil {
					return nil, nil, err
				}
			}
			mode, err := browser.ParseMode(class.Mode)
			if err != nil {
				return nil, nil, err
			}
			target.Sessions = factory.WithMode(mode, class.Headless)
		}

		targets[retailer] = target
		classes = append(classes, scheduler.Class{
			Name:        string(retailer),
			Concurrency: class.Concurrency,
			Limiter:     limiter,
		})
	}

	return targets, classes, nil
}

func openSecondarySinks(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.Database.Enabled {
		pg, err := sink.NewPostgres(ctx, sink.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		}, runID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
		logger.Info("postgres sink enabled", "host", cfg.Database.Host, "database", cfg.Database.DBName)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			for _, s := range sinks {
				s.Close()
			}
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sinks = append(sinks, sink.NewRedisStream(client, cfg.Redis.Stream, runID))
		logger.Info("redis stream sink enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	return sinks, nil
}

func skipDone(tasks []models.SkuTask, done map[string]bool) []models.SkuTask {
	if len(done) == 0 {
		return tasks
	}
	remaining := make([]models.SkuTask, 0, len(tasks))
	for _, t := range tasks {
		if !done[t.Key()] {
			remaining = append(remaining, t)
		}
	}
	return remaining
}

func note(events *sink.EventLog, logger *slog.Logger, detail string) {
	err := events.Record(models.AttemptLog{
		Timestamp: time.Now(),
		Outcome:   models.OutcomeInfo,
		Detail:    detail,
	})
	if err != nil {
		logger.Error("failed to write event log", "error", err)
	}
}
