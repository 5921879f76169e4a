// Package store provides the SQLite-backed persistence layer for threads,
// messages, attachments, approved senders, labels, and drafts.
//
// Every read path that returns message content composes the approval
// predicate (approved = 1) server-side. The only exception is the pending
// projection, which returns metadata without bodies.
package store

import (
	"context"
	"errors"

	"github.com/gatemail-dev/gatemail/internal/model"
)

// ErrNotFound is returned when an entity does not exist or exists but is not
// visible under the approval predicate. The two cases are indistinguishable
// to callers so that the existence of unapproved content never leaks.
var ErrNotFound = errors.New("not found")

// MessageFilter controls filtering and pagination for message listings.
type MessageFilter struct {
	ThreadID        string
	Label           string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// DraftUpdate carries a partial draft update. Nil fields are left unchanged.
type DraftUpdate struct {
	To       *string
	Cc       *string
	Bcc      *string
	Subject  *string
	BodyText *string
	ThreadID *string
}

// Store defines the persistence interface for the message store.
type Store interface {
	// Threads.

	GetThread(ctx context.Context, id string) (*model.Thread, error)
	ListThreads(ctx context.Context, limit, offset int) ([]model.Thread, error)
	// ThreadMessages returns the visible messages of a thread, oldest first.
	ThreadMessages(ctx context.Context, threadID string) ([]model.Message, error)

	// Messages.

	// AppendMessage persists a message in a single transaction. If
	// msg.ThreadID is empty a new thread is created from the message's
	// subject and msg.ThreadID is set on return; otherwise the existing
	// thread's aggregates are advanced with an atomic counter bump.
	// Attachments are inserted in the same transaction. A non-empty
	// deleteDraftID removes that draft row as part of the transaction.
	AppendMessage(ctx context.Context, msg *model.Message, atts []model.Attachment, deleteDraftID string) error

	// GetMessage returns a message regardless of approval. Internal use
	// only; tool-facing reads go through GetVisibleMessage.
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetVisibleMessage(ctx context.Context, id string) (*model.Message, error)
	FindByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	// FindByAnyMessageID returns the first message whose protocol message id
	// matches any of the given ids, scanning in the order provided.
	FindByAnyMessageID(ctx context.Context, messageIDs []string) (*model.Message, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]model.Message, error)
	ListPending(ctx context.Context, limit int) ([]model.PendingMessage, error)
	SetArchived(ctx context.Context, id string, archived bool) error
	// AdvanceStatus moves an outbound message's delivery status forward,
	// looked up by the provider-assigned message id. Out-of-order or
	// unknown transitions are ignored; the return value reports whether a
	// row changed.
	AdvanceStatus(ctx context.Context, providerMessageID string, next model.DeliveryStatus) (bool, error)

	// Search. Both variants compose the approval predicate and order by
	// recency. SearchFTS runs a full-text MATCH; SearchLike is the literal
	// substring fallback.
	SearchFTS(ctx context.Context, match string, limit int, includeArchived bool) ([]model.Message, error)
	SearchLike(ctx context.Context, substr string, limit int, includeArchived bool) ([]model.Message, error)

	// Labels.

	AddLabel(ctx context.Context, messageID, label string) error
	RemoveLabel(ctx context.Context, messageID, label string) error
	ListLabels(ctx context.Context, messageID string) ([]string, error)

	// Attachments. Reads join the owning message's approval flag.

	GetAttachment(ctx context.Context, id string) (*model.Attachment, error)
	ListAttachments(ctx context.Context, messageID string) ([]model.Attachment, error)

	// Approved senders.

	IsApprovedSender(ctx context.Context, email string) (bool, error)
	// ApproveSender upserts the allowlist entry and flips every unapproved
	// message from that sender to approved in the same transaction,
	// returning the number of messages changed.
	ApproveSender(ctx context.Context, email string, name *string) (int64, error)
	DeleteApprovedSender(ctx context.Context, email string) error
	ListApprovedSenders(ctx context.Context) ([]model.ApprovedSender, error)

	// Drafts.

	CreateDraft(ctx context.Context, d *model.Draft) error
	UpdateDraft(ctx context.Context, id string, u DraftUpdate) (*model.Draft, error)
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	ListDrafts(ctx context.Context, limit, offset int) ([]model.Draft, error)
	DeleteDraft(ctx context.Context, id string) error

	Close() error
}
