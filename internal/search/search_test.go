package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{name: "plain terms", query: "hello world", wantErr: false},
		{name: "quoted phrase", query: `"hello world"`, wantErr: false},
		{name: "unbalanced quote", query: `"hello`, wantErr: true},
		{name: "wildcard", query: "hel*", wantErr: true},
		{name: "column filter", query: "subject:hello", wantErr: true},
		{name: "boolean operator", query: "hello AND world", wantErr: true},
		{name: "negation", query: "hello -world", wantErr: true},
		{name: "parens", query: "(hello)", wantErr: true},
		{name: "operator inside quotes ok", query: `"hello AND world"`, wantErr: false},
		{name: "special char inside quotes ok", query: `"C++ rocks"`, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuery(tt.query)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuerySyntax)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func seedSearchable(t *testing.T, s *store.SQLiteStore, subject, body string, approved bool) *model.Message {
	t.Helper()
	b := body
	msg := &model.Message{
		ID:        uuid.NewString(),
		From:      "alice@example.com",
		To:        "me@example.com",
		Subject:   subject,
		BodyText:  &b,
		Direction: model.DirectionInbound,
		Approved:  approved,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendMessage(context.Background(), msg, nil, ""))
	return msg
}

func TestSearchIndexedPath(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	e := NewEngine(s, nil)

	seedSearchable(t, s, "budget review", "numbers for the quarter", true)
	seedSearchable(t, s, "lunch", "pizza on friday", true)

	got, err := e.Search(context.Background(), "budget", 10, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "budget review", got[0].Subject)
}

func TestSearchMalformedQueryFallsBack(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	e := NewEngine(s, nil)

	seedSearchable(t, s, `note about "quotes`, `body with "quotes in it`, true)

	// Unbalanced quoting must not error; it becomes a literal substring
	// match over the same visibility-filtered set.
	got, err := e.Search(context.Background(), `"quotes`, 10, false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchFallbackRespectsApproval(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	e := NewEngine(s, nil)

	seedSearchable(t, s, "secret- plans", "hidden content", false)

	// Query with a special token takes the fallback; the fallback must not
	// be a privileged path around the gate.
	got, err := e.Search(context.Background(), "secret-", 10, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchEmptyQuery(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	e := NewEngine(s, nil)

	got, err := e.Search(context.Background(), "   ", 10, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}
