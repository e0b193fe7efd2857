package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stupiduntilnot/chatrelay/internal/kv"
)

// Store persists chat sessions as delimiter-joined message records on top of
// a key-value backend. Reads fail open, writes fail closed.
type Store struct {
	kv      kv.Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewStore wraps a key-value backend. Every backend call is bounded by
// timeout when it is positive.
func NewStore(backend kv.Store, timeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: backend, timeout: timeout, logger: logger}
}

// Load returns the session's messages in order. A missing record, a backend
// error or an undecodable record all yield an empty history.
func (s *Store) Load(ctx context.Context, key string) []Message {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	record, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("history_load_failed", "key", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return Decode(record)
}

// Save overwrites the session record with messages.
func (s *Store) Save(ctx context.Context, key string, messages []Message) error {
	record, err := Encode(messages)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.kv.Put(ctx, key, record); err != nil {
		return fmt.Errorf("save history %s: %w", key, err)
	}
	return nil
}

// Reset deletes the session record.
func (s *Store) Reset(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset history %s: %w", key, err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
