package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gatemail-dev/gatemail/internal/model"
)

// GetThread returns a thread by id.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	var t model.Thread
	err := s.db.GetContext(ctx, &t, "SELECT * FROM threads WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting thread %s: %w", id, err)
	}
	return &t, nil
}

// ListThreads returns threads ordered by most recent activity.
func (s *SQLiteStore) ListThreads(ctx context.Context, limit, offset int) ([]model.Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	var threads []model.Thread
	err := s.db.SelectContext(ctx, &threads,
		"SELECT * FROM threads ORDER BY last_message_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return threads, nil
}

// ThreadMessages returns the visible messages of a thread, oldest first.
// Unapproved messages are omitted so a thread view never leaks ungated
// content; the thread's message_count still includes them.
func (s *SQLiteStore) ThreadMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT * FROM messages WHERE thread_id = ? AND approved = 1 ORDER BY created_at ASC",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing thread messages: %w", err)
	}
	return msgs, nil
}
