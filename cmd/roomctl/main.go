// Command roomctl drives the game master controls from a terminal, against
// the same stores the server uses.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/clock"
	"github.com/playperu/escaperoom/internal/config"
	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/server"
	"github.com/playperu/escaperoom/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	localDB, err := database.OpenLocal(ctx, cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer localDB.Close()
	local, err := storage.NewLocalStore(ctx, localDB)
	if err != nil {
		return fmt.Errorf("initializing local store: %w", err)
	}

	// An unreachable primary leaves the commands working on the local store;
	// the server copies those writes up once it can reach the primary again.
	pc, err := storage.ConnectPrimary(ctx, cfg.DBPath, cfg.DBAuthToken, logger)
	if err != nil {
		return err
	}
	defer pc.Close()

	// With Redis configured, hints and broadcasts reach open player screens
	// immediately instead of on their next poll.
	var pub game.Publisher
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		pub = server.NewRedisRelay(rdb, server.NewBroker(), logger)
	}

	clk := clock.Real{}
	repo := storage.NewRepository(pc.Store(), local, logger, clk.Now).
		WithTimeouts(cfg.PrimaryTimeout, 0)
	content := game.NewContentService(ctx, repo, logger)
	svc := admin.NewService(repo, content, pub, logger, clk.Now)

	return newCLI(svc, stdout).exec(ctx, args)
}
