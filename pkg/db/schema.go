package db

import (
	"fmt"

	"github.com/rs/zerolog"
)

var tables = []struct {
	name string
	ddl  string
}{
	{"chat_rooms", `CREATE TABLE IF NOT EXISTS chat_rooms (
		id text PRIMARY KEY,
		participant_ids set<text>,
		participant_key text,
		created_at timestamp,
		updated_at timestamp,
		last_message_at timestamp
	)`},
	// Canonical participant set -> room. Claimed with LWT so concurrent
	// creators agree on one room.
	{"room_keys", `CREATE TABLE IF NOT EXISTS room_keys (
		participant_key text PRIMARY KEY,
		room_id text
	)`},
	{"user_rooms", `CREATE TABLE IF NOT EXISTS user_rooms (
		user_id text,
		chat_room_id text,
		PRIMARY KEY (user_id, chat_room_id)
	)`},
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		chat_room_id text,
		id bigint,
		sender_id text,
		content text,
		media_uri text,
		message_type text,
		duration int,
		is_deleted boolean,
		metadata text,
		trade_id text,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY (chat_room_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`},
	{"message_rooms", `CREATE TABLE IF NOT EXISTS message_rooms (
		id bigint PRIMARY KEY,
		chat_room_id text
	)`},
	{"room_unread", `CREATE TABLE IF NOT EXISTS room_unread (
		user_id text,
		chat_room_id text,
		unread_count counter,
		PRIMARY KEY ((user_id, chat_room_id))
	)`},
	{"read_cursors", `CREATE TABLE IF NOT EXISTS read_cursors (
		chat_room_id text,
		user_id text,
		last_read_id bigint,
		read_at timestamp,
		PRIMARY KEY (chat_room_id, user_id)
	)`},
}

// Migrate creates the keyspace and every chat table if missing.
func Migrate(cfg Config, replicationFactor int, logger zerolog.Logger) error {
	if replicationFactor <= 0 {
		replicationFactor = 1
	}

	// Connect to system keyspace to create the chat keyspace
	sysSession, err := NewSession(Config{Hosts: cfg.Hosts, Keyspace: "system", Timeout: cfg.Timeout}, logger)
	if err != nil {
		return fmt.Errorf("connect system keyspace: %w", err)
	}
	err = sysSession.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : %d }`,
		cfg.Keyspace, replicationFactor,
	)).Exec()
	sysSession.Close()
	if err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}

	session, err := NewSession(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect %s keyspace: %w", cfg.Keyspace, err)
	}
	defer session.Close()

	for _, t := range tables {
		if err := session.Query(t.ddl).Exec(); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
		logger.Info().Str("table", t.name).Msg("table ready")
	}
	return nil
}

// DropSchema removes every chat table. Development use only.
func DropSchema(session *Session, logger zerolog.Logger) error {
	for i := len(tables) - 1; i >= 0; i-- {
		name := tables[i].name
		if err := session.Query("DROP TABLE IF EXISTS " + name).Exec(); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		logger.Info().Str("table", name).Msg("table dropped")
	}
	return nil
}
