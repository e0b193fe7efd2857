package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect holds the driver name and statements for one SQL backend. All
// dialects use the sessions(chat_key, messages, updated_at) table.
type Dialect struct {
	Name        string
	Driver      string
	CreateTable string
	SelectSQL   string
	UpsertSQL   string
	DeleteSQL   string
}

// SQLite leaves table creation to db.InitSchema, which owns the database file.
var SQLite = Dialect{
	Name:      "sqlite",
	Driver:    "sqlite3",
	SelectSQL: `SELECT messages FROM sessions WHERE chat_key = ?`,
	UpsertSQL: `INSERT INTO sessions (chat_key, messages) VALUES (?, ?)
		ON CONFLICT(chat_key) DO UPDATE SET messages = excluded.messages, updated_at = unixepoch()`,
	DeleteSQL: `DELETE FROM sessions WHERE chat_key = ?`,
}

var Postgres = Dialect{
	Name:   "postgres",
	Driver: "postgres",
	CreateTable: `CREATE TABLE IF NOT EXISTS sessions (
		chat_key TEXT PRIMARY KEY,
		messages TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	SelectSQL: `SELECT messages FROM sessions WHERE chat_key = $1`,
	UpsertSQL: `INSERT INTO sessions (chat_key, messages) VALUES ($1, $2)
		ON CONFLICT (chat_key) DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()`,
	DeleteSQL: `DELETE FROM sessions WHERE chat_key = $1`,
}

var MySQL = Dialect{
	Name:   "mysql",
	Driver: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS sessions (
		chat_key VARCHAR(191) NOT NULL PRIMARY KEY,
		messages LONGTEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	SelectSQL: `SELECT messages FROM sessions WHERE chat_key = ?`,
	UpsertSQL: `INSERT INTO sessions (chat_key, messages) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE messages = VALUES(messages)`,
	DeleteSQL: `DELETE FROM sessions WHERE chat_key = ?`,
}

// DialectByName returns the dialect for a STORE_BACKEND value.
func DialectByName(name string) (Dialect, bool) {
	switch name {
	case SQLite.Name:
		return SQLite, true
	case Postgres.Name:
		return Postgres, true
	case MySQL.Name:
		return MySQL, true
	}
	return Dialect{}, false
}

// SQLStore keeps one row per session in a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// NewSQLStore uses an existing handle. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQL opens dsn with the dialect's driver, pings it and creates the
// sessions table when the dialect defines one.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", dialect.Name, err)
	}
	if dialect.CreateTable != "" {
		if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s sessions table: %w", dialect.Name, err)
		}
	}
	return &SQLStore{db: db, dialect: dialect, owned: true}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.SelectSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select session %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.UpsertSQL, key, value); err != nil {
		return fmt.Errorf("upsert session %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.DeleteSQL, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Close closes the handle only when OpenSQL created it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
