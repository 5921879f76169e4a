// Package search provides full-text lookup over messages with a literal
// substring fallback for queries that are not valid index syntax. Both paths
// run the same visibility-filtered store query; the fallback is never a
// privileged path.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
)

// ErrInvalidQuerySyntax classifies a query string that the full-text index
// cannot parse. Callers never see it; the engine catches it and degrades to
// the substring fallback.
var ErrInvalidQuerySyntax = errors.New("invalid query syntax")

// Engine runs approval-filtered searches against the store.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

// NewEngine creates a search engine over the given store.
func NewEngine(s store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// Search runs the indexed full-text match when the query is valid index
// syntax, otherwise a literal substring match. Both stages compose the
// approval predicate and, unless includeArchived, exclude archived mail.
// A malformed query is never an error to the caller.
func (e *Engine) Search(ctx context.Context, query string, limit int, includeArchived bool) ([]model.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	// Two-stage decision: classify first, only then touch the index.
	if err := ValidateQuery(query); err != nil {
		e.logger.Debug("query not valid index syntax, using substring fallback",
			slog.String("reason", err.Error()))
		return e.store.SearchLike(ctx, query, limit, includeArchived)
	}

	msgs, err := e.store.SearchFTS(ctx, query, limit, includeArchived)
	if err != nil {
		// The classifier is conservative but not a full FTS5 parser; if the
		// index still rejects the string, degrade the same way.
		e.logger.Debug("index rejected query, using substring fallback",
			slog.String("error", err.Error()))
		return e.store.SearchLike(ctx, query, limit, includeArchived)
	}
	return msgs, nil
}

// ValidateQuery reports whether the query is acceptable full-text index
// syntax. It is deliberately conservative: only plain terms and balanced
// double-quoted phrases pass. Operators, column filters, wildcards, and
// unbalanced quoting are classified as invalid so they take the literal
// fallback instead of erroring inside the index.
func ValidateQuery(query string) error {
	if strings.Count(query, `"`)%2 != 0 {
		return ErrInvalidQuerySyntax
	}

	inQuotes := false
	for _, r := range query {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		switch r {
		case '*', ':', '^', '(', ')', '{', '}', '-', '+':
			return ErrInvalidQuerySyntax
		}
	}

	// Bare FTS5 keywords act as operators outside quotes.
	for _, tok := range strings.Fields(query) {
		switch tok {
		case "AND", "OR", "NOT", "NEAR":
			return ErrInvalidQuerySyntax
		}
	}

	return nil
}
