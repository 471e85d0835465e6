package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/radioguessr/internal/catalog"
	"github.com/playperu/radioguessr/internal/clip"
	"github.com/playperu/radioguessr/internal/config"
	"github.com/playperu/radioguessr/internal/database"
	"github.com/playperu/radioguessr/internal/handler/health"
	"github.com/playperu/radioguessr/internal/migrations"
	"github.com/playperu/radioguessr/internal/region"
	"github.com/playperu/radioguessr/internal/round"
	"github.com/playperu/radioguessr/internal/scheduler"
	"github.com/playperu/radioguessr/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(stdout, cfg)

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath())
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath(), "migrations_applied", applied)

	checks := map[string]health.Checker{"sqlite": health.DB(db)}

	// --- Clip index ---
	var index clip.Index = clip.NewSQLiteIndex(db)
	if cfg.ClipIndex == "redis" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		index = clip.NewRedisIndex(rdb)
		checks["redis"] = health.Redis(rdb)
	}

	// --- Station catalog ---
	snapshots, err := catalog.OpenBoltSnapshots(cfg.CatalogSnapshotPath)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot: %w", err)
	}
	defer snapshots.Close()

	cat := catalog.New(logger, catalog.Options{
		PrimaryURL:   cfg.StationsPrimaryURL,
		FallbackURL:  cfg.StationsFallbackURL,
		UserAgent:    cfg.StationsUserAgent,
		FetchTimeout: cfg.StationsFetchTimeout,
		Interval:     cfg.CatalogRefreshInterval,
	}, snapshots)
	if err := cat.Restore(ctx); err != nil {
		logger.Warn("ignoring unreadable catalog snapshot", "error", err)
	}
	checks["catalog"] = cat

	sched, err := scheduler.New(logger, cfg.CatalogReloadCron, cat)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	// --- Rounds ---
	sampler := region.NewSampler(logger, cat, region.Options{
		MinNeighbors: cfg.SamplerMinNeighbors,
		MaxAttempts:  cfg.SamplerMaxAttempts,
		RadiusKm:     cfg.SamplerRadiusKm,
		Strategy:     region.Strategy(cfg.SamplerStrategy),
	})

	clipDir, err := filepath.Abs(cfg.ClipDir)
	if err != nil {
		return fmt.Errorf("resolving clip dir: %w", err)
	}
	clips, err := clip.New(logger, index, clip.FFmpeg{Path: cfg.FFmpegPath}, clip.Options{
		Dir:       clipDir,
		URLPrefix: cfg.ClipURLPrefix,
		Timeout:   cfg.ClipTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating clip cache: %w", err)
	}

	if cfg.RoundSecret == "" {
		logger.Warn("ROUND_SECRET not set, using a random key; rounds will not survive a restart")
	}
	codec, err := round.NewCodec(cfg.RoundSecret)
	if err != nil {
		return fmt.Errorf("creating round codec: %w", err)
	}
	rounds := round.NewService(logger, cat, sampler, clips, codec, round.Options{
		BucketWidth: cfg.ClipBucketWidth,
	})

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Rounds:        rounds,
		Catalog:       cat,
		Checks:        checks,
		ClipDir:       clipDir,
		ClipURLPrefix: cfg.ClipURLPrefix,
		SPADir:        cfg.SPADir,
		CORSOrigins:   cfg.CORSOrigins,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Warm the catalog so the first round does not pay for the download.
		if err := cat.Refresh(gctx); err != nil {
			logger.Debug("catalog warmup interrupted", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{Level: cfg.LogLevel}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
