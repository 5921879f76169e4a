// Package threading resolves which conversation an inbound message joins,
// based on its In-Reply-To and References headers.
package threading

import (
	"context"
	"errors"
	"strings"

	"github.com/gatemail-dev/gatemail/internal/store"
)

// Resolver decides thread membership for inbound mail.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the id of the thread the message joins, or "" when no
// prior message matches and a new thread should be created. In-Reply-To is
// the fast path since most replies set it to the immediate parent; the
// References walk (oldest first) covers replies that only carry history.
func (r *Resolver) Resolve(ctx context.Context, inReplyTo string, references []string) (string, error) {
	if inReplyTo != "" {
		m, err := r.store.FindByMessageID(ctx, inReplyTo)
		if err == nil {
			return m.ThreadID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}

	if len(references) > 0 {
		m, err := r.store.FindByAnyMessageID(ctx, references)
		if err == nil {
			return m.ThreadID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}

	return "", nil
}

// ParseReferences splits a raw References header into individual message
// ids, oldest first per email convention. A malformed header degrades to an
// empty list, never an error, so the message falls back to a new thread.
func ParseReferences(header string) []string {
	if header == "" {
		return nil
	}
	var ids []string
	for _, field := range strings.Fields(header) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		// Angle brackets are kept as part of the id; bare tokens without
		// them are tolerated since some senders emit unbracketed ids.
		ids = append(ids, field)
	}
	return ids
}

// AppendReference extends a References chain with a message id, building the
// chain a reply should carry: the original's References plus its own id.
func AppendReference(references []string, messageID string) []string {
	if messageID == "" {
		return references
	}
	out := make([]string, 0, len(references)+1)
	out = append(out, references...)
	return append(out, messageID)
}
