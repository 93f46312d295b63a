package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/clock"
	"github.com/playperu/escaperoom/internal/config"
	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/handler/health"
	"github.com/playperu/escaperoom/internal/locale"
	"github.com/playperu/escaperoom/internal/server"
	"github.com/playperu/escaperoom/internal/settings"
	"github.com/playperu/escaperoom/internal/storage"
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

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Local fallback (pure-Go SQLite) ---
	localDB, err := database.OpenLocal(ctx, cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer localDB.Close()

	local, err := storage.NewLocalStore(ctx, localDB)
	if err != nil {
		return fmt.Errorf("initializing local store: %w", err)
	}
	logger.Info("opened local store", "path", cfg.LocalDBPath)

	// --- Primary (libSQL) ---
	// Admin accounts and settings always live in a DocStore. Without a
	// reachable primary that store is in memory and sessions stay local-only.
	pc, err := storage.ConnectPrimary(ctx, cfg.DBPath, cfg.DBAuthToken, logger)
	if err != nil {
		return err
	}
	defer pc.Close()

	docs := pc.Docs
	if err := seedAdmin(ctx, docs, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	primary := pc.Store()
	if !pc.Configured() {
		logger.Warn("no primary store configured, sessions are local-only")
	}

	// --- Game ---
	broker := server.NewBroker()
	var pub server.Publisher = broker

	// --- Redis (optional) ---
	var relay *server.RedisRelay
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		relay = server.NewRedisRelay(rdb, broker, logger)
		pub = relay
		logger.Info("connected to redis")
	}

	clk := clock.Real{}
	repo := storage.NewRepository(primary, local, logger, clk.Now).
		WithTimeouts(cfg.PrimaryTimeout, 0)
	content := game.NewContentService(ctx, repo, logger)
	games := game.NewManager(repo, content, clk, pub, logger, game.Options{
		TickInterval:     cfg.TickInterval,
		SyncEveryTicks:   cfg.SyncEveryTicks,
		AutoAdvanceDelay: cfg.AutoAdvanceDelay,
	})
	defer games.Close()

	tr, err := locale.New(cfg.LocaleDir, cfg.Language)
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}

	checks := map[string]health.Dependency{
		"local": {Checker: local},
	}
	if pc.Configured() {
		checks["primary"] = health.Dependency{Checker: pc, Optional: true}
	}
	if rdb != nil {
		checks["redis"] = health.Dependency{Checker: redisChecker{rdb}, Optional: true}
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Games:           games,
		Admin:           admin.NewService(repo, content, pub, logger, clk.Now),
		Auth:            docs,
		Settings:        settings.NewRegistry(ctx, docs, logger),
		Broker:          broker,
		Publisher:       pub,
		Translator:      tr,
		PublicURL:       cfg.PublicURL,
		SPADir:          cfg.SPADir,
		MonitorInterval: cfg.MonitorInterval,
		Mount: func(r chi.Router) {
			r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
		},
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "language", tr.Lang())
		return srv.Run(gctx)
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	if cfg.ContentReloadInterval > 0 {
		g.Go(func() error {
			return content.Watch(gctx, cfg.ContentReloadInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func seedAdmin(ctx context.Context, docs *storage.DocStore, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return docs.EnsureAdmin(ctx, email, string(hash))
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

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
