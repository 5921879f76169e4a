package approval

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

func newGate(t *testing.T) (*Gate, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewGate(s, nil), s
}

func ingest(t *testing.T, s *store.SQLiteStore, from string, approved bool) *model.Message {
	t.Helper()
	msg := &model.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        "me@example.com",
		Subject:   "test",
		Direction: model.DirectionInbound,
		Approved:  approved,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendMessage(context.Background(), msg, nil, ""))
	return msg
}

func TestInitialApprovalFollowsAllowlist(t *testing.T) {
	g, _ := newGate(t)
	ctx := context.Background()

	ok, err := g.InitialApproval(ctx, "unknown@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.Approve(ctx, "Known@Example.com", nil)
	require.NoError(t, err)

	// Case-insensitive on the sender address.
	ok, err = g.InitialApproval(ctx, "known@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApproveRetroactiveAndIdempotent(t *testing.T) {
	g, s := newGate(t)
	ctx := context.Background()

	ingest(t, s, "new@x.com", false)

	res, err := g.Approve(ctx, "new@x.com", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RetroactiveCount)
	assert.Equal(t, "new@x.com", res.Email)

	res, err = g.Approve(ctx, "new@x.com", nil)
	require.NoError(t, err)
	assert.Zero(t, res.RetroactiveCount)
}

func TestRemoveDoesNotRevertMessages(t *testing.T) {
	g, s := newGate(t)
	ctx := context.Background()

	msg := ingest(t, s, "new@x.com", false)
	_, err := g.Approve(ctx, "new@x.com", nil)
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, "new@x.com"))

	got, err := s.GetVisibleMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestIsVisible(t *testing.T) {
	assert.False(t, IsVisible(nil))
	assert.False(t, IsVisible(&model.Message{Approved: false}))
	assert.True(t, IsVisible(&model.Message{Approved: true}))
}
