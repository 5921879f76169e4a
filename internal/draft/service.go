// Package draft manages the lifecycle of unsent messages: create, patch,
// list, delete, and promotion to a real send.
package draft

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gatemail-dev/gatemail/internal/compose"
	"github.com/gatemail-dev/gatemail/internal/logging"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
)

// Service wraps draft persistence and promotion. Every field of a draft is
// optional; validation only happens at send time, inside the composer.
type Service struct {
	store    store.Store
	composer *compose.Composer
	logger   *slog.Logger
}

// NewService creates a draft Service.
func NewService(s store.Store, c *compose.Composer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, composer: c, logger: logger}
}

// Create persists a new draft and returns it with its assigned id.
func (s *Service) Create(ctx context.Context, d *model.Draft) (*model.Draft, error) {
	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Debug("draft created", slog.String("draft_id", d.ID))
	return d, nil
}

// Update applies a partial update and returns the updated draft.
func (s *Service) Update(ctx context.Context, id string, u store.DraftUpdate) (*model.Draft, error) {
	return s.store.UpdateDraft(ctx, id, u)
}

// Get returns a draft by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Draft, error) {
	return s.store.GetDraft(ctx, id)
}

// List returns drafts, most recently updated first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Draft, error) {
	return s.store.ListDrafts(ctx, limit, offset)
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteDraft(ctx, id)
}

// Send promotes a draft to a dispatched message. The draft row is removed in
// the same transaction that records the sent message, so a failed dispatch
// leaves the draft intact for another attempt.
func (s *Service) Send(ctx context.Context, id string) (*compose.SendResult, error) {
	d, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	p := compose.SendParams{
		To:      splitList(d.To),
		Cc:      splitList(d.Cc),
		Bcc:     splitList(d.Bcc),
		Subject: deref(d.Subject),
		Body:    deref(d.BodyText),
	}
	if d.ThreadID != nil {
		p.ThreadID = *d.ThreadID
	}

	res, err := s.composer.SendPromotingDraft(ctx, p, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft sent",
		slog.String("draft_id", id),
		logging.Message(res.MessageID),
		logging.Thread(res.ThreadID),
	)
	return res, nil
}

// splitList splits a stored comma-separated address list into a slice.
func splitList(s *string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
