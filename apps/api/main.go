package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/config"
	"github.com/rindah89/barter/pkg/db"
	"github.com/rindah89/barter/pkg/events"
	"github.com/rindah89/barter/pkg/logging"
	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/presence"
	"github.com/rindah89/barter/pkg/profile"
	"github.com/rindah89/barter/pkg/snowflake"
)

const defaultProfileDSN = "barter_profiles.db"

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{
		ServiceName: "api",
		Environment: cfg.Env,
		Level:       cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, mediaDir, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           newRouter(h, mediaDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.APIAddr).Msg("API service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildHandler connects every backend. Scylla and Kafka are optional in
// development: without them the API runs on in-memory storage and events.
func buildHandler(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Handler, string, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, "", cleanup, err
	}

	var repo chat.Repository
	if len(cfg.ScyllaHosts) > 0 {
		session, err := db.NewSession(db.Config{Hosts: cfg.ScyllaHosts, Keyspace: cfg.ScyllaKeyspace}, logger)
		if err != nil {
			return nil, "", cleanup, err
		}
		closers = append(closers, session.Close)
		repo = db.NewChatRepository(session, logger)
	} else {
		logger.Warn().Msg("SCYLLA_HOSTS not set, using in-memory chat storage")
		repo = chat.NewMemoryRepository()
	}

	var publisher chat.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, func() { kp.Close() })
		publisher = kp
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, message events stay in-process")
		publisher = events.NewMemoryBus()
	}

	dsn := cfg.ProfileDatabaseURL
	if dsn == "" {
		dsn = defaultProfileDSN
	}
	gdb, err := profile.Open(profile.Config{DSN: dsn, LogSQL: cfg.IsDevelopment()}, logger)
	if err != nil {
		return nil, "", cleanup, err
	}
	profiles := profile.NewStore(gdb)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	closers = append(closers, func() { rdb.Close() })
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, "", cleanup, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	var store media.Store
	mediaDir := ""
	if cfg.CloudinaryEnabled() {
		store = media.NewCloudinaryStore(media.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
		}, &http.Client{Timeout: 60 * time.Second})
	} else {
		disk, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
		if err != nil {
			return nil, "", cleanup, err
		}
		store = disk
		mediaDir = disk.Root()
	}

	h := &Handler{
		chat:     chat.NewService(repo, profiles, publisher, ids, logger),
		presence: presence.NewStore(rdb, logger, presence.WithStaleAfter(cfg.PresenceStaleAfter)),
		media:    media.NewGateway(store, logger),
		profiles: profiles,
		signer:   auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL),
		log:      logger,
	}
	return h, mediaDir, cleanup, nil
}
