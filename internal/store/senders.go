package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gatemail-dev/gatemail/internal/model"
)

// NormalizeEmail lowercases and trims an email address for allowlist and
// sender-matching comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsApprovedSender reports whether the normalized email is on the allowlist.
func (s *SQLiteStore) IsApprovedSender(ctx context.Context, email string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM approved_senders WHERE email = ?",
		NormalizeEmail(email),
	)
	if err != nil {
		return false, fmt.Errorf("checking approved sender: %w", err)
	}
	return count > 0, nil
}

// ApproveSender upserts the allowlist entry and retroactively approves every
// unapproved message from that sender in the same transaction. The bulk
// update is a single statement, so a message ingested concurrently is either
// swept up by it or inserted after the allowlist row exists and is born
// approved; no message can be stranded at approved=0.
func (s *SQLiteStore) ApproveSender(ctx context.Context, email string, name *string) (int64, error) {
	normalized := NormalizeEmail(email)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO approved_senders (email, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET name = excluded.name`,
		normalized, name, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("upserting approved sender: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE messages SET approved = 1 WHERE from_address = ? AND approved = 0",
		normalized,
	)
	if err != nil {
		return 0, fmt.Errorf("retroactively approving messages: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting approved messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing approval: %w", err)
	}
	return count, nil
}

// DeleteApprovedSender removes the allowlist entry. Messages already marked
// approved keep their flag; approval is a one-way gate per message.
func (s *SQLiteStore) DeleteApprovedSender(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM approved_senders WHERE email = ?",
		NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("deleting approved sender: %w", err)
	}
	return nil
}

// ListApprovedSenders returns the allowlist ordered by email.
func (s *SQLiteStore) ListApprovedSenders(ctx context.Context) ([]model.ApprovedSender, error) {
	var senders []model.ApprovedSender
	err := s.db.SelectContext(ctx, &senders,
		"SELECT * FROM approved_senders ORDER BY email",
	)
	if err != nil {
		return nil, fmt.Errorf("listing approved senders: %w", err)
	}
	return senders, nil
}
