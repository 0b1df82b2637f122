package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rindah89/barter/pkg/config"
	"github.com/rindah89/barter/pkg/logging"
	"github.com/rindah89/barter/pkg/presence"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{
		ServiceName: "presence-sweeper",
		Environment: cfg.Env,
		Level:       cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}

	store := presence.NewStore(rdb, logger, presence.WithStaleAfter(cfg.PresenceStaleAfter))
	logger.Info().
		Dur("interval", cfg.PresenceSweepInterval).
		Dur("stale_after", store.StaleAfter()).
		Msg("presence sweeper starting")

	Run(ctx, store, cfg.PresenceSweepInterval, logger)
	logger.Info().Msg("presence sweeper stopped")
}
