// Package storage persists the replicated community projection and the
// message graph in a local sqlite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a sqlite DB file and applies the
// connection pragmas.
func NewSQLiteStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	return &Store{db: db}, nil
}

// InitNodeDB opens the per-identity database under ~/.glen/ (or dbPath when
// set) and runs migrations.
func InitNodeDB(identity string, dbPath string) (*Store, error) {
	fullPath := dbPath
	if fullPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir := homeDir + "/.glen"
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		fullPath = fmt.Sprintf("%s/glen_data_%s.db", dir, identity)
	}
	store, err := NewSQLiteStore(fullPath)
	if err != nil {
		return nil, fmt.Errorf("init node db: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	const sqlStmt = `
CREATE TABLE IF NOT EXISTS communities (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  invite_policy TEXT NOT NULL DEFAULT '',
  default_permission TEXT NOT NULL DEFAULT '',
  last_snapshot_ts INTEGER NOT NULL DEFAULT 0
);

-- Channel ids are scoped per community: distinct communities may reuse an id
-- without touching each other's rows.
CREATE TABLE IF NOT EXISTS channels (
  id TEXT NOT NULL,
  community_id TEXT NOT NULL REFERENCES communities(id),
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  group_ref TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  permission TEXT NOT NULL,
  archived INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL, -- unix micro
  PRIMARY KEY (community_id, id)
);

CREATE INDEX IF NOT EXISTS idx_channels_community ON channels (community_id, archived);

CREATE TABLE IF NOT EXISTS roles (
  community_id TEXT NOT NULL REFERENCES communities(id),
  identity TEXT NOT NULL,
  role TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_identity ON roles (community_id, identity);

CREATE TABLE IF NOT EXISTS bans (
  community_id TEXT NOT NULL REFERENCES communities(id),
  identity TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_bans_identity ON bans (community_id, identity);

-- messages.channel_id is deliberately not a foreign key: chat rows may land
-- before the channel's meta-event on out-of-order delivery.
CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  channel_id TEXT NOT NULL,
  sender TEXT NOT NULL DEFAULT '',
  text TEXT NOT NULL DEFAULT '',
  edit_of TEXT,
  delete_of TEXT,
  redacted INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL -- unix micro
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages (channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender);

CREATE TABLE IF NOT EXISTS message_parents (
  message_id TEXT NOT NULL,
  parent_id TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_message_parents ON message_parents (message_id, parent_id);
CREATE INDEX IF NOT EXISTS idx_parents_parent ON message_parents (parent_id);

CREATE TABLE IF NOT EXISTS profiles (
  identity TEXT PRIMARY KEY,
  handle TEXT NOT NULL DEFAULT '',
  inbox TEXT NOT NULL DEFAULT ''
);
`
	_, err := s.db.Exec(sqlStmt)
	return err
}

// WithTx runs fn inside one transaction; a returned error rolls everything
// back so a failed event leaves no partial writes behind.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
