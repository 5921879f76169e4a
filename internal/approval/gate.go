// Package approval implements the sender allowlist gate. A message's
// approved flag is frozen at ingestion from allowlist membership and can
// only move false -> true, either by retroactive approval of its sender or
// never. Every read path composes the visibility predicate; the gate is the
// single writer of the flag.
package approval

import (
	"context"
	"log/slog"

	"github.com/gatemail-dev/gatemail/internal/logging"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
)

// Gate computes and mutates message approval state.
type Gate struct {
	store  store.Store
	logger *slog.Logger
}

// NewGate creates a Gate over the given store.
func NewGate(s store.Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: s, logger: logger}
}

// InitialApproval reports whether mail from the given sender is approved at
// ingestion time. The result is frozen onto the message at creation and not
// re-derived later except by an explicit Approve.
func (g *Gate) InitialApproval(ctx context.Context, fromAddress string) (bool, error) {
	return g.store.IsApprovedSender(ctx, fromAddress)
}

// ApprovalResult reports the outcome of approving a sender.
type ApprovalResult struct {
	Email            string `json:"email"`
	RetroactiveCount int64  `json:"retroactive_count"`
}

// Approve upserts the sender onto the allowlist and retroactively approves
// all of their unapproved messages. The store performs both in one
// transaction, so a concurrently ingested message is either swept up by the
// bulk update or born approved against the fresh allowlist row.
func (g *Gate) Approve(ctx context.Context, email string, name *string) (*ApprovalResult, error) {
	normalized := store.NormalizeEmail(email)
	count, err := g.store.ApproveSender(ctx, normalized, name)
	if err != nil {
		return nil, err
	}

	g.logger.Info("sender approved",
		logging.UserHash(normalized),
		slog.Int64("retroactive_count", count),
	)

	return &ApprovalResult{Email: normalized, RetroactiveCount: count}, nil
}

// Remove deletes the allowlist entry only. Messages already approved keep
// their flag; approval is a one-way gate per message.
func (g *Gate) Remove(ctx context.Context, email string) error {
	normalized := store.NormalizeEmail(email)
	if err := g.store.DeleteApprovedSender(ctx, normalized); err != nil {
		return err
	}
	g.logger.Info("sender removed from allowlist", logging.UserHash(normalized))
	return nil
}

// List returns the current allowlist.
func (g *Gate) List(ctx context.Context) ([]model.ApprovedSender, error) {
	return g.store.ListApprovedSenders(ctx)
}

// IsVisible is the visibility predicate applied by every read path.
func IsVisible(m *model.Message) bool {
	return m != nil && m.Approved
}
