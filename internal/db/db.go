package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants: turn lifecycle
const (
	EventTurnStarted      = "turn.started"
	EventContextAssembled = "context.assembled"
	EventTurnCompleted    = "turn.completed"
	EventTurnFailed       = "turn.failed"
	EventToolCallStarted  = "tool_call.started"
	EventToolCallDone     = "tool_call.completed"
	EventToolCallFailed   = "tool_call.failed"
	EventHistorySaved     = "history.saved"
	EventReplySent        = "reply.sent"
)

// Event type constants: session management
const (
	EventSessionReset = "session.reset"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates all tables: events, sessions.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);

		CREATE TABLE IF NOT EXISTS sessions (
			chat_key TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
	`)
	return err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// EventLog records events best-effort. A nil EventLog or nil DB drops events.
type EventLog struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// LogEvent writes an event and returns its id, or nil when the write failed
// or logging is disabled. Failures are logged and never returned.
func (l *EventLog) LogEvent(parentID *int64, eventType string, payload map[string]any) *int64 {
	if l == nil || l.DB == nil {
		return nil
	}
	id, err := LogEvent(l.DB, parentID, eventType, payload)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Warn("event_log_failed", "event_type", eventType, "error", err)
		}
		return nil
	}
	return &id
}

type eventParentKey struct{}

// WithEventParent returns a context carrying the id of the enclosing event.
func WithEventParent(ctx context.Context, id *int64) context.Context {
	return context.WithValue(ctx, eventParentKey{}, id)
}

// EventParent returns the enclosing event id stored by WithEventParent.
func EventParent(ctx context.Context) *int64 {
	id, _ := ctx.Value(eventParentKey{}).(*int64)
	return id
}
