package storage

import (
	"context"
	"fmt"
)

// HasMessage reports whether the composite message key has been committed.
func (s *Store) HasMessage(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int

	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_messages WHERE message_key = ?`, key).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}

		return false, fmt.Errorf("has message: %w", err)
	}

	return true, nil
}

// PutMessage commits a message key. Idempotent: inserting an existing key
// is not an error.
func (s *Store) PutMessage(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO processed_messages (message_key) VALUES (?)`, key); err != nil {
		return fmt.Errorf("put message: %w", err)
	}

	return nil
}

// MessageCount returns the number of committed message keys.
func (s *Store) MessageCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("message count: %w", err)
	}

	return count, nil
}
