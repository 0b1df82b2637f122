package main

import (
	"flag"

	"github.com/rindah89/barter/pkg/config"
	"github.com/rindah89/barter/pkg/db"
	"github.com/rindah89/barter/pkg/logging"
)

// reset_schema drops every chat table. Run migrate afterwards to recreate
// them.
func main() {
	confirm := flag.Bool("yes", false, "confirm dropping all chat tables")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(logging.Config{ServiceName: "reset-schema", Environment: cfg.Env, Level: cfg.LogLevel})

	if !*confirm {
		logger.Fatal().Msg("refusing to drop tables without -yes")
	}
	if cfg.Env == "production" {
		logger.Fatal().Msg("refusing to drop tables in production")
	}

	hosts := cfg.ScyllaHosts
	if len(hosts) == 0 {
		hosts = []string{"localhost:9042"}
	}
	session, err := db.NewSession(db.Config{Hosts: hosts, Keyspace: cfg.ScyllaKeyspace}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to scylla")
	}
	defer session.Close()

	if err := db.DropSchema(session, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to drop schema")
	}
	logger.Info().Msg("schema dropped")
}
