package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gatemail-dev/gatemail/internal/model"
)

const messageColumns = `id, thread_id, message_id, in_reply_to, from_address,
	to_addresses, cc_addresses, bcc_addresses, subject, body_text, body_html,
	headers, direction, approved, status, archived, created_at`

// AppendMessage persists a message and its attachments in one transaction.
// A new thread is created when msg.ThreadID is empty; otherwise the existing
// thread's aggregates are advanced with a single-statement bump so that two
// concurrent appends to the same thread cannot lose an increment.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *model.Message, atts []model.Attachment, deleteDraftID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if msg.ThreadID == "" {
		msg.ThreadID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO threads (id, subject, last_message_at, message_count, created_at)
			 VALUES (?, ?, ?, 1, ?)`,
			msg.ThreadID, msg.Subject, msg.CreatedAt.UTC(), msg.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("creating thread: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE threads
			 SET message_count = message_count + 1,
			     last_message_at = MAX(last_message_at, ?)
			 WHERE id = ?`,
			msg.CreatedAt.UTC(), msg.ThreadID,
		)
		if err != nil {
			return fmt.Errorf("bumping thread %s: %w", msg.ThreadID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("bumping thread %s: %w", msg.ThreadID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.MessageID, msg.InReplyTo, msg.From,
		msg.To, msg.Cc, msg.Bcc, msg.Subject, msg.BodyText, msg.BodyHTML,
		msg.Headers, msg.Direction, msg.Approved, msg.Status, msg.Archived,
		msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	for _, a := range atts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attachments (id, message_id, filename, content_type, size, storage_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, msg.ID, a.Filename, a.ContentType, a.Size, a.StorageKey, a.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting attachment %s: %w", a.ID, err)
		}
	}

	if deleteDraftID != "" {
		if _, err := tx.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", deleteDraftID); err != nil {
			return fmt.Errorf("deleting draft %s: %w", deleteDraftID, err)
		}
	}

	return tx.Commit()
}

// GetMessage returns a message by id regardless of approval. Reserved for
// internal paths (ingestion, delivery callbacks); tool-facing reads use
// GetVisibleMessage.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m, "SELECT * FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return &m, nil
}

// GetVisibleMessage returns a message only if it is approved. An unapproved
// message yields the same ErrNotFound as a missing one.
func (s *SQLiteStore) GetVisibleMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m, "SELECT * FROM messages WHERE id = ? AND approved = 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return &m, nil
}

// FindByMessageID looks up a message by its protocol-level Message-ID.
func (s *SQLiteStore) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM messages WHERE message_id = ? LIMIT 1", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding message by message id: %w", err)
	}
	return &m, nil
}

// FindByAnyMessageID returns the first message matching any of the given
// protocol ids, preserving the caller's ordering. The References header
// lists ids oldest first, so the earliest known ancestor wins.
func (s *SQLiteStore) FindByAnyMessageID(ctx context.Context, messageIDs []string) (*model.Message, error) {
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		m, err := s.FindByMessageID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, ErrNotFound
}

// ListMessages returns visible messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, f MessageFilter) ([]model.Message, error) {
	conditions := []string{"m.approved = 1"}
	var args []interface{}

	if f.ThreadID != "" {
		conditions = append(conditions, "m.thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.Label != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM message_labels l WHERE l.message_id = m.id AND l.label = ?)")
		args = append(args, f.Label)
	}
	if !f.IncludeArchived {
		conditions = append(conditions, "m.archived = 0")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT m.* FROM messages m WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY m.created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// ListPending returns the restricted projection of unapproved inbound mail:
// sender, subject, direction, and timestamp only. Bodies, HTML, and headers
// are deliberately not selected.
func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]model.PendingMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var pending []model.PendingMessage
	err := s.db.SelectContext(ctx, &pending,
		`SELECT id, thread_id, from_address, subject, direction, created_at
		 FROM messages WHERE approved = 0 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending messages: %w", err)
	}
	return pending, nil
}

// SetArchived toggles the archived flag on a visible message.
func (s *SQLiteStore) SetArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET archived = ? WHERE id = ? AND approved = 1",
		archived, id,
	)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceStatus moves an outbound message's delivery status forward, looked
// up by provider message id. The WHERE clause encodes the forward-only rule:
// only messages still at 'sent' can advance, so out-of-order callbacks
// silently match zero rows.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, providerMessageID string, next model.DeliveryStatus) (bool, error) {
	if !model.StatusSent.AdvancesTo(next) {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?
		 WHERE message_id = ? AND direction = 'outbound' AND status = 'sent'`,
		string(next), providerMessageID,
	)
	if err != nil {
		return false, fmt.Errorf("advancing status for %s: %w", providerMessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advancing status for %s: %w", providerMessageID, err)
	}
	return n > 0, nil
}

// SearchFTS runs a full-text MATCH over subject and body, composed with the
// approval predicate and ranked by recency.
func (s *SQLiteStore) SearchFTS(ctx context.Context, match string, limit int, includeArchived bool) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT m.* FROM messages m
		JOIN messages_fts f ON f.rowid = m.rowid
		WHERE messages_fts MATCH ? AND m.approved = 1`
	if !includeArchived {
		query += " AND m.archived = 0"
	}
	query += " ORDER BY m.created_at DESC LIMIT ?"

	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, query, match, limit); err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	return msgs, nil
}

// SearchLike is the substring fallback for queries that are not valid FTS
// syntax. It composes the same visibility predicate as SearchFTS.
func (s *SQLiteStore) SearchLike(ctx context.Context, substr string, limit int, includeArchived bool) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(substr) + "%"
	query := `SELECT m.* FROM messages m
		WHERE (m.subject LIKE ? ESCAPE '\' OR m.body_text LIKE ? ESCAPE '\' OR m.body_html LIKE ? ESCAPE '\')
		AND m.approved = 1`
	if !includeArchived {
		query += " AND m.archived = 0"
	}
	query += " ORDER BY m.created_at DESC LIMIT ?"

	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, query, pattern, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	return msgs, nil
}

// escapeLike escapes LIKE wildcards so the fallback is a literal match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// AddLabel attaches a label to a message. Duplicate labels are a no-op.
func (s *SQLiteStore) AddLabel(ctx context.Context, messageID, label string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO message_labels (message_id, label) VALUES (?, ?)",
		messageID, label,
	)
	if err != nil {
		return fmt.Errorf("adding label: %w", err)
	}
	return nil
}

// RemoveLabel detaches a label from a message. Removing an absent label is
// a no-op.
func (s *SQLiteStore) RemoveLabel(ctx context.Context, messageID, label string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM message_labels WHERE message_id = ? AND label = ?",
		messageID, label,
	)
	if err != nil {
		return fmt.Errorf("removing label: %w", err)
	}
	return nil
}

// ListLabels returns the labels attached to a message.
func (s *SQLiteStore) ListLabels(ctx context.Context, messageID string) ([]string, error) {
	var labels []string
	err := s.db.SelectContext(ctx, &labels,
		"SELECT label FROM message_labels WHERE message_id = ? ORDER BY label",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	return labels, nil
}

// GetAttachment returns attachment metadata only when the owning message is
// visible, so attachment fetches cannot bypass the approval gate.
func (s *SQLiteStore) GetAttachment(ctx context.Context, id string) (*model.Attachment, error) {
	var a model.Attachment
	err := s.db.GetContext(ctx, &a,
		`SELECT a.* FROM attachments a
		 JOIN messages m ON m.id = a.message_id
		 WHERE a.id = ? AND m.approved = 1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting attachment %s: %w", id, err)
	}
	return &a, nil
}

// ListAttachments returns attachment metadata for a visible message.
func (s *SQLiteStore) ListAttachments(ctx context.Context, messageID string) ([]model.Attachment, error) {
	var atts []model.Attachment
	err := s.db.SelectContext(ctx, &atts,
		`SELECT a.* FROM attachments a
		 JOIN messages m ON m.id = a.message_id
		 WHERE a.message_id = ? AND m.approved = 1
		 ORDER BY a.created_at ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	return atts, nil
}
