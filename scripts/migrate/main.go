package main

import (
	"flag"

	"github.com/rindah89/barter/pkg/config"
	"github.com/rindah89/barter/pkg/db"
	"github.com/rindah89/barter/pkg/logging"
)

func main() {
	rf := flag.Int("replication-factor", 1, "keyspace replication factor")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(logging.Config{ServiceName: "migrate", Environment: cfg.Env, Level: cfg.LogLevel})

	hosts := cfg.ScyllaHosts
	if len(hosts) == 0 {
		hosts = []string{"localhost:9042"}
	}

	if err := db.Migrate(db.Config{Hosts: hosts, Keyspace: cfg.ScyllaKeyspace}, *rf, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Str("keyspace", cfg.ScyllaKeyspace).Msg("schema is up to date")
}
