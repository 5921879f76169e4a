package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatemail-dev/gatemail/internal/approval"
	"github.com/gatemail-dev/gatemail/internal/blob"
	"github.com/gatemail-dev/gatemail/internal/logging"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/threading"
	"github.com/gatemail-dev/gatemail/internal/webhook"
)

// Pipeline runs inbound messages through threading resolution, the approval
// gate, and persistence, then notifies the webhook dispatcher. One pipeline
// serves every inbound source.
type Pipeline struct {
	store      store.Store
	blobs      blob.Store
	resolver   *threading.Resolver
	gate       *approval.Gate
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

// NewPipeline wires an ingestion pipeline.
func NewPipeline(
	s store.Store,
	blobs blob.Store,
	resolver *threading.Resolver,
	gate *approval.Gate,
	dispatcher *webhook.Dispatcher,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      s,
		blobs:      blobs,
		resolver:   resolver,
		gate:       gate,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// IngestRaw parses raw RFC 5322 bytes and ingests the result.
func (p *Pipeline) IngestRaw(ctx context.Context, raw []byte) (*model.Message, error) {
	in, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return p.Ingest(ctx, in)
}

// Ingest persists one inbound message. Re-delivery of a message id already
// in the store is a no-op returning the existing row, so upstream retries
// cannot duplicate messages or inflate thread counters.
func (p *Pipeline) Ingest(ctx context.Context, in *InboundEmail) (*model.Message, error) {
	if in.From == "" {
		return nil, fmt.Errorf("inbound message has no sender address")
	}

	if in.MessageID != "" {
		existing, err := p.store.FindByMessageID(ctx, in.MessageID)
		if err == nil {
			p.logger.Debug("duplicate inbound message ignored",
				logging.Message(existing.ID))
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	threadID, err := p.resolver.Resolve(ctx, in.InReplyTo, in.References)
	if err != nil {
		return nil, err
	}

	approved, err := p.gate.InitialApproval(ctx, in.From)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		From:      in.From,
		To:        strings.Join(in.To, ", "),
		Subject:   in.Subject,
		Direction: model.DirectionInbound,
		Approved:  approved,
		CreatedAt: now,
	}
	if in.MessageID != "" {
		mid := in.MessageID
		msg.MessageID = &mid
	}
	if in.InReplyTo != "" {
		irt := in.InReplyTo
		msg.InReplyTo = &irt
	}
	if cc := strings.Join(in.Cc, ", "); cc != "" {
		msg.Cc = &cc
	}
	if in.Text != "" {
		text := in.Text
		msg.BodyText = &text
	}
	if in.HTML != "" {
		html := in.HTML
		msg.BodyHTML = &html
	}
	if len(in.Headers) > 0 {
		if encoded, err := json.Marshal(in.Headers); err == nil {
			h := string(encoded)
			msg.Headers = &h
		}
	}

	// Blob writes happen before the metadata transaction so a committed
	// attachment row always points at an existing payload. A failure here
	// may orphan earlier blobs; orphans are tolerated.
	rows := make([]model.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		attID := uuid.NewString()
		key := blob.Key(msg.ID, attID, a.Filename)
		if err := p.blobs.Put(ctx, key, a.Content); err != nil {
			return nil, fmt.Errorf("storing attachment payload: %w", err)
		}
		size := int64(len(a.Content))
		row := model.Attachment{
			ID:         attID,
			MessageID:  msg.ID,
			StorageKey: key,
			Size:       &size,
			CreatedAt:  now,
		}
		if a.Filename != "" {
			fn := a.Filename
			row.Filename = &fn
		}
		if a.ContentType != "" {
			ct := a.ContentType
			row.ContentType = &ct
		}
		rows = append(rows, row)
	}

	if err := p.store.AppendMessage(ctx, msg, rows, ""); err != nil {
		return nil, err
	}

	p.logger.Info("inbound message ingested",
		logging.Message(msg.ID),
		logging.Thread(msg.ThreadID),
		logging.UserHash(msg.From),
		slog.Bool("approved", msg.Approved),
		slog.Int("attachments", len(rows)),
	)

	// Metadata only. The notification never carries bodies, so an
	// unapproved message cannot leak content through the webhook.
	p.dispatcher.Notify(webhook.EventMessageReceived, map[string]any{
		"id":         msg.ID,
		"thread_id":  msg.ThreadID,
		"from":       msg.From,
		"subject":    msg.Subject,
		"approved":   msg.Approved,
		"created_at": msg.CreatedAt,
	})

	return msg, nil
}
