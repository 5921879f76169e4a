package threading

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

func seedMessage(t *testing.T, s *store.SQLiteStore, messageID string) *model.Message {
	t.Helper()
	id := messageID
	msg := &model.Message{
		ID:        uuid.NewString(),
		MessageID: &id,
		From:      "alice@example.com",
		To:        "me@example.com",
		Subject:   "seed",
		Direction: model.DirectionInbound,
		Approved:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendMessage(context.Background(), msg, nil, ""))
	return msg
}

func TestResolveByInReplyTo(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	parent := seedMessage(t, s, "<parent@x>")
	r := NewResolver(s)

	threadID, err := r.Resolve(context.Background(), "<parent@x>", nil)
	require.NoError(t, err)
	assert.Equal(t, parent.ThreadID, threadID)
}

func TestResolveByReferencesWalk(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ancestor := seedMessage(t, s, "<ancestor@x>")
	r := NewResolver(s)

	// In-Reply-To misses, References walk finds the ancestor.
	threadID, err := r.Resolve(context.Background(), "<gone@x>", []string{"<ancestor@x>", "<also-gone@x>"})
	require.NoError(t, err)
	assert.Equal(t, ancestor.ThreadID, threadID)
}

func TestResolveNoMatchMeansNewThread(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	r := NewResolver(s)
	threadID, err := r.Resolve(context.Background(), "", []string{"<unknown@x>"})
	require.NoError(t, err)
	assert.Empty(t, threadID)
}

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{
			name:   "empty",
			header: "",
			want:   nil,
		},
		{
			name:   "single id",
			header: "<a@x>",
			want:   []string{"<a@x>"},
		},
		{
			name:   "multiple whitespace separated",
			header: "<a@x> <b@x>\n\t<c@x>",
			want:   []string{"<a@x>", "<b@x>", "<c@x>"},
		},
		{
			name:   "malformed degrades to tokens not error",
			header: "not-an-id <<>",
			want:   []string{"not-an-id", "<<>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReferences(tt.header))
		})
	}
}

func TestAppendReference(t *testing.T) {
	assert.Equal(t, []string{"<m1@x>"}, AppendReference(nil, "<m1@x>"))
	assert.Equal(t, []string{"<a@x>", "<m1@x>"}, AppendReference([]string{"<a@x>"}, "<m1@x>"))
	assert.Nil(t, AppendReference(nil, ""))
}
