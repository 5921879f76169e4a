// Package model defines the persisted entities of the gatemail message store:
// threads, messages, attachments, approved senders, and drafts.
package model

import "time"

// Direction marks whether a message was received or sent by this mailbox.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// DeliveryStatus tracks outbound delivery progress. Statuses only advance
// forward (sent -> delivered/bounced/complained); callbacks that would move
// a message backwards are ignored.
type DeliveryStatus string

const (
	StatusSent       DeliveryStatus = "sent"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusBounced    DeliveryStatus = "bounced"
	StatusComplained DeliveryStatus = "complained"
)

// statusRank orders delivery statuses for the forward-only transition check.
var statusRank = map[DeliveryStatus]int{
	StatusSent:       1,
	StatusDelivered:  2,
	StatusBounced:    2,
	StatusComplained: 2,
}

// AdvancesTo reports whether moving from s to next is a forward transition.
func (s DeliveryStatus) AdvancesTo(next DeliveryStatus) bool {
	return statusRank[next] > statusRank[s]
}

// Thread groups messages into a conversation. Subject is set by the first
// message and never mutated; MessageCount and LastMessageAt are maintained
// by the store with single-statement increments.
type Thread struct {
	ID            string    `db:"id" json:"id"`
	Subject       string    `db:"subject" json:"subject"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	MessageCount  int       `db:"message_count" json:"message_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Message is a single inbound or outbound email belonging to exactly one
// thread. Approved is frozen at ingestion from the sender allowlist and only
// ever flips false -> true.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ThreadID  string    `db:"thread_id" json:"thread_id"`
	MessageID *string   `db:"message_id" json:"message_id,omitempty"`
	InReplyTo *string   `db:"in_reply_to" json:"in_reply_to,omitempty"`
	From      string    `db:"from_address" json:"from"`
	To        string    `db:"to_addresses" json:"to"`
	Cc        *string   `db:"cc_addresses" json:"cc,omitempty"`
	Bcc       *string   `db:"bcc_addresses" json:"bcc,omitempty"`
	Subject   string    `db:"subject" json:"subject"`
	BodyText  *string   `db:"body_text" json:"body_text,omitempty"`
	BodyHTML  *string   `db:"body_html" json:"body_html,omitempty"`
	Headers   *string   `db:"headers" json:"headers,omitempty"`
	Direction Direction `db:"direction" json:"direction"`
	Approved  bool      `db:"approved" json:"approved"`
	Status    *string   `db:"status" json:"status,omitempty"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PendingMessage is the restricted projection exposed to reviewers of
// unapproved mail. It deliberately carries no body, HTML, or headers so an
// automated reviewer never ingests untrusted content while deciding.
type PendingMessage struct {
	ID        string    `db:"id" json:"id"`
	ThreadID  string    `db:"thread_id" json:"thread_id"`
	From      string    `db:"from_address" json:"from"`
	Subject   string    `db:"subject" json:"subject"`
	Direction Direction `db:"direction" json:"direction"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Attachment is metadata for a stored attachment payload. The payload lives
// in the blob store under StorageKey; the row is only written after the blob
// write succeeds.
type Attachment struct {
	ID          string    `db:"id" json:"id"`
	MessageID   string    `db:"message_id" json:"message_id"`
	Filename    *string   `db:"filename" json:"filename,omitempty"`
	ContentType *string   `db:"content_type" json:"content_type,omitempty"`
	Size        *int64    `db:"size" json:"size,omitempty"`
	StorageKey  string    `db:"storage_key" json:"storage_key"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ApprovedSender is an allowlist entry. Email is normalized to lowercase and
// acts as the primary key.
type ApprovedSender struct {
	Email     string    `db:"email" json:"email"`
	Name      *string   `db:"name" json:"name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Draft is an unsent, mutable message stub. Every field except the id and
// timestamps is optional; a draft may be empty.
type Draft struct {
	ID        string    `db:"id" json:"id"`
	To        *string   `db:"to_addresses" json:"to,omitempty"`
	Cc        *string   `db:"cc_addresses" json:"cc,omitempty"`
	Bcc       *string   `db:"bcc_addresses" json:"bcc,omitempty"`
	Subject   *string   `db:"subject" json:"subject,omitempty"`
	BodyText  *string   `db:"body_text" json:"body_text,omitempty"`
	ThreadID  *string   `db:"thread_id" json:"thread_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
