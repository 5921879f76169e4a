// Package compose builds and dispatches outbound mail. Dispatch always
// happens before any bookkeeping, so a transport failure persists nothing;
// a failure after dispatch is logged as sent-but-unrecorded rather than
// silently lost.
package compose

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatemail-dev/gatemail/internal/blob"
	"github.com/gatemail-dev/gatemail/internal/logging"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/threading"
	"github.com/gatemail-dev/gatemail/internal/transport"
)

// Threading header names handled by the composer.
const (
	headerInReplyTo  = "In-Reply-To"
	headerReferences = "References"
)

// ErrValidation marks a missing or malformed caller input.
var ErrValidation = errors.New("validation failed")

// AttachmentInput is a caller-supplied attachment: either an inline base64
// payload or a reference to a previously stored attachment whose blob is
// fetched and republished under a new key.
type AttachmentInput struct {
	Filename      string `json:"filename,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ContentBase64 string `json:"content,omitempty"`
	ContentID     string `json:"content_id,omitempty"`
}

// SendParams describes an outbound message.
type SendParams struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	ThreadID    string
	Headers     map[string]string
	Attachments []AttachmentInput
}

// SendResult reports the identifiers of a dispatched message.
type SendResult struct {
	ProviderMessageID string `json:"provider_message_id"`
	MessageID         string `json:"message_id"`
	ThreadID          string `json:"thread_id"`
}

// Composer dispatches outbound mail and performs thread bookkeeping.
type Composer struct {
	store  store.Store
	blobs  blob.Store
	cfg    transport.Config
	logger *slog.Logger

	// newTransport is swapped in tests to avoid real network dispatch.
	newTransport func(transport.Config) (transport.Transport, error)

	// defaultFrom is used when SendParams.From is empty.
	defaultFrom string
}

// NewComposer creates a Composer. The transport is selected per call via
// the pure transport.Select, not fixed at construction.
func NewComposer(s store.Store, blobs blob.Store, cfg transport.Config, defaultFrom string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		store:        s,
		blobs:        blobs,
		cfg:          cfg,
		logger:       logger,
		newTransport: transport.New,
		defaultFrom:  defaultFrom,
	}
}

// SetTransportFactory overrides transport construction; used by tests.
func (c *Composer) SetTransportFactory(f func(transport.Config) (transport.Transport, error)) {
	c.newTransport = f
}

// Send dispatches a new message. When ThreadID is supplied the message
// joins that thread and its header chain; otherwise a new thread is always
// created — outbound never uses the inbound header-matching heuristic.
func (c *Composer) Send(ctx context.Context, p SendParams) (*SendResult, error) {
	return c.send(ctx, p, "")
}

// SendPromotingDraft dispatches like Send and removes the given draft row in
// the same transaction as the message insert. The draft survives any
// failure before or during dispatch so the attempt can be retried.
func (c *Composer) SendPromotingDraft(ctx context.Context, p SendParams, draftID string) (*SendResult, error) {
	return c.send(ctx, p, draftID)
}

func (c *Composer) send(ctx context.Context, p SendParams, draftID string) (*SendResult, error) {
	if len(p.To) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	from := p.From
	if from == "" {
		from = c.defaultFrom
	}
	if from == "" {
		return nil, fmt.Errorf("%w: no sender address configured", ErrValidation)
	}

	// Resolve attachment inputs before anything is dispatched; a missing
	// reference fails the whole call.
	resolved, err := c.resolveAttachments(ctx, p.Attachments)
	if err != nil {
		return nil, err
	}

	tr, err := c.newTransport(c.cfg)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}
	if p.ThreadID != "" {
		// Resolve the thread before dispatching so an unknown id cannot
		// leave a sent message without a row.
		if _, err := c.store.GetThread(ctx, p.ThreadID); err != nil {
			return nil, err
		}
		if err := c.extendHeadersFromThread(ctx, p.ThreadID, headers); err != nil {
			return nil, err
		}
	}

	return c.dispatchAndRecord(ctx, tr, from, p, headers, resolved, draftID)
}

// Reply dispatches a reply to an existing message, deriving threading
// headers, recipient, and subject from the original, and joining its thread.
func (c *Composer) Reply(ctx context.Context, originalID, body string, atts []AttachmentInput) (*SendResult, error) {
	original, err := c.store.GetVisibleMessage(ctx, originalID)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	if original.MessageID != nil && *original.MessageID != "" {
		headers[headerInReplyTo] = *original.MessageID
	}
	refs := threading.AppendReference(referencesOf(original), stringValue(original.MessageID))
	if len(refs) > 0 {
		headers[headerReferences] = strings.Join(refs, " ")
	}

	// Replying to received mail goes back to the sender; replying to our
	// own sent mail goes to its recipient.
	var to []string
	if original.Direction == model.DirectionInbound {
		to = []string{original.From}
	} else {
		to = splitAddresses(original.To)
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: original message has no usable recipient", ErrValidation)
	}

	resolved, err := c.resolveAttachments(ctx, atts)
	if err != nil {
		return nil, err
	}

	tr, err := c.newTransport(c.cfg)
	if err != nil {
		return nil, err
	}

	p := SendParams{
		From:     c.defaultFrom,
		To:       to,
		Subject:  replySubject(original.Subject),
		Body:     body,
		ThreadID: original.ThreadID,
	}
	return c.dispatchAndRecord(ctx, tr, c.defaultFrom, p, headers, resolved, "")
}

// dispatchAndRecord sends through the transport and, only on success,
// persists the message, its thread bookkeeping, and its attachments.
func (c *Composer) dispatchAndRecord(
	ctx context.Context,
	tr transport.Transport,
	from string,
	p SendParams,
	headers map[string]string,
	atts []resolvedAttachment,
	draftID string,
) (*SendResult, error) {
	wireHeaders := filterHeaders(headers, tr.Capabilities())

	wire := &transport.Message{
		From:    from,
		To:      p.To,
		Cc:      p.Cc,
		Bcc:     p.Bcc,
		Subject: p.Subject,
		Text:    p.Body,
		Headers: wireHeaders,
	}
	for _, a := range atts {
		wire.Attachments = append(wire.Attachments, transport.Attachment{
			Filename:    a.filename,
			ContentType: a.contentType,
			Content:     a.content,
		})
	}

	providerID, err := tr.Send(ctx, wire)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ID:        uuid.NewString(),
		ThreadID:  p.ThreadID,
		From:      store.NormalizeEmail(from),
		To:        strings.Join(p.To, ", "),
		Subject:   p.Subject,
		Direction: model.DirectionOutbound,
		Approved:  true,
		Archived:  false,
		CreatedAt: now,
	}
	if providerID != "" {
		msg.MessageID = &providerID
	}
	if p.Body != "" {
		body := p.Body
		msg.BodyText = &body
	}
	if cc := strings.Join(p.Cc, ", "); cc != "" {
		msg.Cc = &cc
	}
	if bcc := strings.Join(p.Bcc, ", "); bcc != "" {
		msg.Bcc = &bcc
	}
	if irt, ok := headers[headerInReplyTo]; ok {
		msg.InReplyTo = &irt
	}
	if len(headers) > 0 {
		if encoded, err := json.Marshal(headers); err == nil {
			h := string(encoded)
			msg.Headers = &h
		}
	}
	status := string(model.StatusSent)
	msg.Status = &status

	// Blob writes precede metadata rows so a reader never sees metadata
	// for a missing payload.
	rows := make([]model.Attachment, 0, len(atts))
	for _, a := range atts {
		attID := uuid.NewString()
		key := blob.Key(msg.ID, attID, a.filename)
		if err := c.blobs.Put(ctx, key, a.content); err != nil {
			return nil, c.sentButUnrecorded(providerID, fmt.Errorf("storing attachment payload: %w", err))
		}
		size := int64(len(a.content))
		row := model.Attachment{
			ID:         attID,
			MessageID:  msg.ID,
			StorageKey: key,
			Size:       &size,
			CreatedAt:  now,
		}
		if a.filename != "" {
			fn := a.filename
			row.Filename = &fn
		}
		if a.contentType != "" {
			ct := a.contentType
			row.ContentType = &ct
		}
		rows = append(rows, row)
	}

	if err := c.store.AppendMessage(ctx, msg, rows, draftID); err != nil {
		return nil, c.sentButUnrecorded(providerID, err)
	}

	c.logger.Info("message dispatched",
		slog.String("transport", tr.Name()),
		slog.String("message_id", msg.ID),
		slog.String("thread_id", msg.ThreadID),
		logging.UserHash(from),
	)

	return &SendResult{
		ProviderMessageID: providerID,
		MessageID:         msg.ID,
		ThreadID:          msg.ThreadID,
	}, nil
}

// sentButUnrecorded flags the one inconsistency dispatch-first ordering
// allows: the provider accepted the message but local bookkeeping failed.
func (c *Composer) sentButUnrecorded(providerID string, err error) error {
	c.logger.Error("message dispatched but not recorded",
		slog.String("provider_message_id", providerID),
		logging.Err(err),
	)
	return fmt.Errorf("message sent (provider id %s) but not recorded: %w", providerID, err)
}

type resolvedAttachment struct {
	filename    string
	contentType string
	content     []byte
}

// resolveAttachments materializes attachment inputs: inline payloads are
// decoded, references fetch the prior attachment's blob for republishing
// under a new key.
func (c *Composer) resolveAttachments(ctx context.Context, inputs []AttachmentInput) ([]resolvedAttachment, error) {
	var out []resolvedAttachment
	for i, in := range inputs {
		switch {
		case in.ContentID != "":
			meta, err := c.store.GetAttachment(ctx, in.ContentID)
			if err != nil {
				return nil, fmt.Errorf("attachment reference %s: %w", in.ContentID, err)
			}
			content, err := c.blobs.Get(ctx, meta.StorageKey)
			if err != nil {
				return nil, fmt.Errorf("fetching attachment payload %s: %w", in.ContentID, err)
			}
			r := resolvedAttachment{content: content}
			r.filename = in.Filename
			if r.filename == "" {
				r.filename = stringValue(meta.Filename)
			}
			r.contentType = in.ContentType
			if r.contentType == "" {
				r.contentType = stringValue(meta.ContentType)
			}
			out = append(out, r)
		case in.ContentBase64 != "":
			content, err := base64.StdEncoding.DecodeString(in.ContentBase64)
			if err != nil {
				return nil, fmt.Errorf("%w: attachment %d is not valid base64", ErrValidation, i)
			}
			out = append(out, resolvedAttachment{
				filename:    in.Filename,
				contentType: in.ContentType,
				content:     content,
			})
		default:
			return nil, fmt.Errorf("%w: attachment %d has neither content nor content_id", ErrValidation, i)
		}
	}
	return out, nil
}

// extendHeadersFromThread joins the thread's header chain: the latest
// message in the thread carrying a protocol id becomes the reply parent.
// Explicit caller-supplied threading headers are left untouched.
func (c *Composer) extendHeadersFromThread(ctx context.Context, threadID string, headers map[string]string) error {
	if _, ok := headers[headerInReplyTo]; ok {
		return nil
	}
	msgs, err := c.store.ThreadMessages(ctx, threadID)
	if err != nil {
		return err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.MessageID == nil || *m.MessageID == "" {
			continue
		}
		headers[headerInReplyTo] = *m.MessageID
		refs := threading.AppendReference(referencesOf(&m), *m.MessageID)
		headers[headerReferences] = strings.Join(refs, " ")
		return nil
	}
	return nil
}

// filterHeaders drops headers the transport will not pass through; the send
// proceeds without them rather than failing.
func filterHeaders(headers map[string]string, caps transport.Capabilities) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if caps.AllowsHeader(name) {
			out[name] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// referencesOf extracts the References chain from a message's serialized
// headers. Malformed or absent headers yield an empty chain.
func referencesOf(m *model.Message) []string {
	if m.Headers == nil {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(*m.Headers), &headers); err != nil {
		return nil
	}
	return threading.ParseReferences(headers[headerReferences])
}

// replySubject prefixes "Re: " unless the subject already carries it.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// splitAddresses splits a stored comma-separated address list.
func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
