package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/config"
	"github.com/rindah89/barter/pkg/db"
	"github.com/rindah89/barter/pkg/events"
	"github.com/rindah89/barter/pkg/logging"
	"github.com/rindah89/barter/pkg/presence"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{
		ServiceName: "gateway",
		Environment: cfg.Env,
		Level:       cfg.LogLevel,
	})

	if len(cfg.KafkaBrokers) == 0 || len(cfg.ScyllaHosts) == 0 {
		logger.Fatal().Msg("gateway requires KAFKA_BROKERS and SCYLLA_HOSTS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := db.NewSession(db.Config{Hosts: cfg.ScyllaHosts, Keyspace: cfg.ScyllaKeyspace}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to scylla")
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	store := presence.NewStore(rdb, logger, presence.WithStaleAfter(cfg.PresenceStaleAfter))

	hub := NewHub(db.NewChatRepository(session, logger), store, logger)
	go hub.Run(ctx)

	if err := fanIn(ctx, cfg, hub, store, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to start event fan-in")
	}

	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL)
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, signer, logger, w, r)
	})

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info().Str("addr", cfg.GatewayAddr).Msg("Gateway service starting")
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

// fanIn feeds the hub from Kafka (room events) and Redis (presence changes).
// Each gateway instance reads with its own consumer group so every instance
// sees every event.
func fanIn(ctx context.Context, cfg *config.Config, hub *Hub, store *presence.Store, logger zerolog.Logger) error {
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "gateway-" + uuid.NewString()
	}
	consumer := events.NewKafkaConsumer(events.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: groupID,
	}, logger)
	go func() {
		defer consumer.Close()
		if err := consumer.Consume(ctx, hub.PublishMessageEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("kafka consumer stopped")
		}
	}()

	_, err := store.SubscribeAll(ctx, hub.PublishPresence)
	return err
}
