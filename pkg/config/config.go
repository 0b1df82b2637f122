package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the settings shared by every barter binary.
type Config struct {
	Env      string
	LogLevel string

	APIAddr     string
	GatewayAddr string

	ScyllaHosts    []string
	ScyllaKeyspace string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr string

	ProfileDatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	MediaDir     string
	MediaBaseURL string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	PresenceStaleAfter    time.Duration
	PresenceSweepInterval time.Duration

	SnowflakeNode int64
}

// Load reads configuration from environment variables, loading .env first
// when present. Production requires a JWT secret.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIAddr:     getEnv("API_ADDR", ":8081"),
		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),

		ScyllaHosts:    getEnvList("SCYLLA_HOSTS"),
		ScyllaKeyspace: getEnv("SCYLLA_KEYSPACE", "chat"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "chat-events"),
		KafkaGroupID: os.Getenv("KAFKA_GROUP_ID"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		ProfileDatabaseURL: os.Getenv("PROFILE_DATABASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		MediaDir:     getEnv("MEDIA_DIR", "media"),
		MediaBaseURL: getEnv("MEDIA_BASE_URL", "http://localhost:8081/media"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		PresenceStaleAfter:    getEnvDuration("PRESENCE_STALE_AFTER", 2*time.Minute),
		PresenceSweepInterval: getEnvDuration("PRESENCE_SWEEP_INTERVAL", 30*time.Second),

		SnowflakeNode: int64(getEnvInt("SNOWFLAKE_NODE", 1)),
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			panic("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-only-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// CloudinaryEnabled reports whether uploads should go to Cloudinary rather
// than local disk.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Dur("default", fallback).Msg("config: invalid duration, using default")
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Int("default", fallback).Msg("config: invalid int, using default")
	}
	return fallback
}
