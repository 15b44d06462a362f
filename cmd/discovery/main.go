// job-ingest discovery service.
//
// Imports job postings from career sites and GitHub README tables, runs
// per-user recurring scrapes on a cron scheduler, stores new postings in
// job_feed and announces them on Redis or NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/api"
	"jobmate/job-ingest/internal/cache"
	"jobmate/job-ingest/internal/config"
	"jobmate/job-ingest/internal/db"
	"jobmate/job-ingest/internal/extract"
	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/logging"
	"jobmate/job-ingest/internal/notify"
	"jobmate/job-ingest/internal/ratelimit"
	"jobmate/job-ingest/internal/scheduler"
	"jobmate/job-ingest/internal/scraper"
	"jobmate/job-ingest/internal/table"
	"jobmate/job-ingest/internal/telemetry"
)

const (
	serviceName = "job-ingest"
	version     = "1.0.0"

	cacheCleanupSpec = "@every 10m"
	natsConnTimeout  = 5 * time.Second
)

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(cfg.LogLevel)
}

func newLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.WithLimits(cfg.RateLimits))
}

func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*cache.ResultCache, error) {
	c, err := cache.New(cache.Options{TTL: cfg.CacheTTL, SeenCapacity: cfg.SeenCapacity})
	if err != nil {
		return nil, err
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cacheCleanupSpec, func() {
		if n := c.CleanupExpired(); n > 0 {
			logger.Debug("expired cache entries removed", zap.Int("count", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("cron.AddFunc: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
	return c, nil
}

func newFetcher(cfg *config.Config, logger *zap.Logger) *scraper.ContentFetcher {
	return scraper.NewContentFetcher(scraper.FetcherConfig{
		Timeout:    cfg.FetchTimeout,
		MaxRetries: cfg.FetchMaxRetries,
		RetryDelay: cfg.FetchRetryDelay,
	}, logger)
}

func newImporter(
	cfg *config.Config,
	fetcher *scraper.ContentFetcher,
	registry *extract.Registry,
	limiter *ratelimit.Limiter,
	tables *table.Importer,
	logger *zap.Logger,
) *importer.JobImporter {
	return importer.New(fetcher, registry, limiter, tables, importer.Config{
		RepoDefaultMax:  cfg.RepoDefaultMax,
		RepoMaxResults:  cfg.RepoMaxResults,
		BulkConcurrency: cfg.BulkConcurrency,
		BulkMaxURLs:     cfg.BulkMaxURLs,
	}, logger)
}

func newScraper(imp *importer.JobImporter, c *cache.ResultCache, logger *zap.Logger) *scraper.Scraper {
	return scraper.New(imp, c, logger)
}

func newTableImporter() *table.Importer {
	return table.NewImporter()
}

// newPostgres returns a nil pool when DATABASE_URL is unset.
func newPostgres(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, postings will not be stored")
		return nil, nil
	}
	pool, err := db.NewPostgresPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		pool.Close()
		return nil
	}})
	logger.Info("postgres connected")
	return pool, nil
}

func newPostingStore(pool *pgxpool.Pool, logger *zap.Logger) *db.PostingStore {
	if pool == nil {
		return nil
	}
	return db.NewPostingStore(pool, logger)
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (notify.Publisher, error) {
	var (
		pub notify.Publisher
		err error
	)
	switch cfg.NotifyBackend {
	case "redis":
		rdb, rerr := db.NewRedisClient(context.Background(), cfg.RedisURL)
		if rerr != nil {
			return nil, rerr
		}
		pub = notify.NewRedisPublisher(rdb, logger)
	case "nats":
		pub, err = notify.NewNATSPublisher(cfg.NATSURL, natsConnTimeout, logger)
		if err != nil {
			return nil, err
		}
	default:
		pub = notify.Nop(logger)
	}
	logger.Info("notification backend ready", zap.String("backend", cfg.NotifyBackend))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return pub.Close() }})
	return pub, nil
}

func newScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	scr *scraper.Scraper,
	pool *pgxpool.Pool,
	store *db.PostingStore,
	pub notify.Publisher,
	logger *zap.Logger,
) *scheduler.Scheduler {
	sink := func(ctx context.Context, job scheduler.Job, res *scraper.ScrapeResult) {
		if store != nil {
			saved := store.SaveAll(ctx, job.ID, res.New)
			logger.Info("new postings stored", zap.String("job_id", job.ID), zap.Int("saved", saved))
		}
		if err := pub.Publish(ctx, notify.NewEvent(job.ID, job.OwnerID, job.Source, res.New)); err != nil {
			logger.Warn("new postings notification failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	s := scheduler.New(scr, logger,
		scheduler.WithMisfireGrace(cfg.MisfireGrace),
		scheduler.WithResultSink(sink),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if pool != nil {
				configs, err := db.LoadSearchConfigs(ctx, pool)
				if err != nil {
					return fmt.Errorf("load search configs: %w", err)
				}
				logger.Info("search configs loaded",
					zap.Int("configs", len(configs)),
					zap.Int("scheduled", s.Load(configs)),
				)
			}
			s.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop(ctx)
			cancel()
			return nil
		},
	})
	return s
}

func newHandler(
	imp *importer.JobImporter,
	s *scheduler.Scheduler,
	store *db.PostingStore,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *api.Handler {
	opts := []api.Option{api.WithVersion(version), api.WithBudget(limiter)}
	if store != nil {
		opts = append(opts, api.WithPersist(store.Save))
	}
	return api.NewHandler(imp, s, logger, opts...)
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, h *api.Handler, logger *zap.Logger) *http.Server {
	// Bulk imports and manual triggers fetch upstream pages inline.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			logger.Info("listening", zap.String("addr", srv.Addr), zap.String("version", version))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

func startTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	if cfg.OTELCollectorURL == "" {
		return nil
	}
	shutdown, err := telemetry.InitTracer(context.Background(), serviceName, version, cfg.OTELCollectorURL)
	if err != nil {
		return err
	}
	logger.Info("tracing enabled", zap.String("collector", cfg.OTELCollectorURL))
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newLimiter,
			newCache,
			newFetcher,
			extract.NewRegistry,
			newTableImporter,
			newImporter,
			newScraper,
			newPostgres,
			newPostingStore,
			newPublisher,
			newScheduler,
			newHandler,
			newHTTPServer,
		),
		fx.Invoke(
			startTracing,
			func(*http.Server) {},
		),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatalf("[%s] start: %v", serviceName, err)
	}

	<-app.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Fatalf("[%s] stop: %v", serviceName, err)
	}
}
