package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatemail-dev/gatemail/internal/model"
)

// CreateDraft inserts a new draft. Any subset of fields may be populated;
// an entirely empty draft is valid. The id and timestamps are assigned here.
func (s *SQLiteStore) CreateDraft(ctx context.Context, d *model.Draft) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, to_addresses, cc_addresses, bcc_addresses, subject, body_text, thread_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.To, d.Cc, d.Bcc, d.Subject, d.BodyText, d.ThreadID, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating draft: %w", err)
	}
	return nil
}

// UpdateDraft applies a partial update in place; nil fields are untouched.
// Returns the draft as stored after the update.
func (s *SQLiteStore) UpdateDraft(ctx context.Context, id string, u DraftUpdate) (*model.Draft, error) {
	var sets []string
	var args []interface{}

	appendSet := func(col string, val *string) {
		if val != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *val)
		}
	}
	appendSet("to_addresses", u.To)
	appendSet("cc_addresses", u.Cc)
	appendSet("bcc_addresses", u.Bcc)
	appendSet("subject", u.Subject)
	appendSet("body_text", u.BodyText)
	appendSet("thread_id", u.ThreadID)

	if len(sets) > 0 {
		query := "UPDATE drafts SET "
		for i, set := range sets {
			if i > 0 {
				query += ", "
			}
			query += set
		}
		query += ", updated_at = ? WHERE id = ?"
		args = append(args, time.Now().UTC(), id)

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("updating draft %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("updating draft %s: %w", id, err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}

	return s.GetDraft(ctx, id)
}

// GetDraft returns a draft by id.
func (s *SQLiteStore) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	var d model.Draft
	err := s.db.GetContext(ctx, &d, "SELECT * FROM drafts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting draft %s: %w", id, err)
	}
	return &d, nil
}

// ListDrafts returns drafts ordered by most recent update.
func (s *SQLiteStore) ListDrafts(ctx context.Context, limit, offset int) ([]model.Draft, error) {
	if limit <= 0 {
		limit = 50
	}
	var drafts []model.Draft
	err := s.db.SelectContext(ctx, &drafts,
		"SELECT * FROM drafts ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// DeleteDraft removes a draft unconditionally, leaving no trace and touching
// no message.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
