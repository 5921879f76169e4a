package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatemail-dev/gatemail/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strptr(s string) *string { return &s }

// newMessage builds an inbound message with sensible defaults.
func newMessage(overrides func(*model.Message)) *model.Message {
	m := &model.Message{
		ID:        uuid.NewString(),
		From:      "alice@example.com",
		To:        "me@example.com",
		Subject:   "Hello",
		BodyText:  strptr("hello there"),
		Direction: model.DirectionInbound,
		Approved:  true,
		CreatedAt: time.Now().UTC(),
	}
	if overrides != nil {
		overrides(m)
	}
	return m
}

func TestAppendMessageCreatesThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(nil)
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))
	require.NotEmpty(t, msg.ThreadID)

	thread, err := s.GetThread(ctx, msg.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", thread.Subject)
	assert.Equal(t, 1, thread.MessageCount)
}

func TestAppendMessageBumpsExistingThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newMessage(nil)
	require.NoError(t, s.AppendMessage(ctx, first, nil, ""))

	second := newMessage(func(m *model.Message) {
		m.ThreadID = first.ThreadID
		m.CreatedAt = first.CreatedAt.Add(time.Minute)
	})
	require.NoError(t, s.AppendMessage(ctx, second, nil, ""))

	thread, err := s.GetThread(ctx, first.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.MessageCount)
	assert.True(t, thread.LastMessageAt.After(first.CreatedAt))

	// message_count must equal the number of messages referencing the thread
	msgs, err := s.ThreadMessages(ctx, first.ThreadID)
	require.NoError(t, err)
	assert.Len(t, msgs, thread.MessageCount)
}

func TestAppendMessageUnknownThread(t *testing.T) {
	s := newTestStore(t)
	msg := newMessage(func(m *model.Message) { m.ThreadID = "no-such-thread" })
	err := s.AppendMessage(context.Background(), msg, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisibilityGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hidden := newMessage(func(m *model.Message) {
		m.From = "stranger@example.com"
		m.Approved = false
	})
	require.NoError(t, s.AppendMessage(ctx, hidden, nil, ""))

	// Unapproved and missing are indistinguishable.
	_, err := s.GetVisibleMessage(ctx, hidden.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetVisibleMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// The raw read still works for internal paths.
	raw, err := s.GetMessage(ctx, hidden.ID)
	require.NoError(t, err)
	assert.False(t, raw.Approved)

	// Listings exclude it.
	msgs, err := s.ListMessages(ctx, MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Thread assembly excludes it, but the counter still counts it.
	thread, err := s.GetThread(ctx, hidden.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.MessageCount)
	visible, err := s.ThreadMessages(ctx, hidden.ThreadID)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestListPendingProjection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(func(m *model.Message) {
		m.From = "new@x.com"
		m.Subject = "Hi"
		m.Approved = false
		m.BodyText = strptr("secret body")
	})
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))

	pending, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "new@x.com", pending[0].From)
	assert.Equal(t, "Hi", pending[0].Subject)
	assert.Equal(t, model.DirectionInbound, pending[0].Direction)
}

func TestApproveSenderRetroactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := newMessage(func(m *model.Message) {
			m.From = "new@x.com"
			m.Approved = false
		})
		require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))
	}

	count, err := s.ApproveSender(ctx, "New@X.com", strptr("New Person"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Exhaustive: nothing remains unapproved for this sender.
	pending, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Idempotent: second approval reports zero retroactive changes and no
	// duplicate allowlist row.
	count, err = s.ApproveSender(ctx, "new@x.com", strptr("Renamed"))
	require.NoError(t, err)
	assert.Zero(t, count)

	senders, err := s.ListApprovedSenders(ctx)
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Equal(t, "new@x.com", senders[0].Email)
	require.NotNil(t, senders[0].Name)
	assert.Equal(t, "Renamed", *senders[0].Name)
}

func TestDeleteApprovedSenderKeepsMessagesApproved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(func(m *model.Message) {
		m.From = "new@x.com"
		m.Approved = false
	})
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))

	_, err := s.ApproveSender(ctx, "new@x.com", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteApprovedSender(ctx, "new@x.com"))

	// Approval is one-way per message.
	got, err := s.GetVisibleMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)

	approved, err := s.IsApprovedSender(ctx, "new@x.com")
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestSearchFTSAndFallbackSeeVisibleOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	visible := newMessage(func(m *model.Message) {
		m.Subject = "quarterly report"
		m.BodyText = strptr("numbers are up")
	})
	require.NoError(t, s.AppendMessage(ctx, visible, nil, ""))

	hidden := newMessage(func(m *model.Message) {
		m.From = "spam@example.com"
		m.Subject = "quarterly scam"
		m.Approved = false
	})
	require.NoError(t, s.AppendMessage(ctx, hidden, nil, ""))

	fts, err := s.SearchFTS(ctx, "quarterly", 10, false)
	require.NoError(t, err)
	require.Len(t, fts, 1)
	assert.Equal(t, visible.ID, fts[0].ID)

	like, err := s.SearchLike(ctx, "quarterly", 10, false)
	require.NoError(t, err)
	require.Len(t, like, 1)
	assert.Equal(t, visible.ID, like[0].ID)
}

func TestSearchArchivedFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(func(m *model.Message) { m.Subject = "old news" })
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))
	require.NoError(t, s.SetArchived(ctx, msg.ID, true))

	res, err := s.SearchFTS(ctx, "news", 10, false)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.SearchFTS(ctx, "news", 10, true)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSearchSeesWriteImmediately(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(func(m *model.Message) { m.BodyText = strptr("synchronous index check") })
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))

	res, err := s.SearchFTS(ctx, "synchronous", 10, false)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestAdvanceStatusForwardOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	out := newMessage(func(m *model.Message) {
		m.Direction = model.DirectionOutbound
		m.MessageID = strptr("<provider-1@mail>")
		m.Status = strptr(string(model.StatusSent))
	})
	require.NoError(t, s.AppendMessage(ctx, out, nil, ""))

	changed, err := s.AdvanceStatus(ctx, "<provider-1@mail>", model.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)

	// delivered -> bounced would be sideways; ignored, not an error
	changed, err = s.AdvanceStatus(ctx, "<provider-1@mail>", model.StatusBounced)
	require.NoError(t, err)
	assert.False(t, changed)

	// unknown provider id is ignored
	changed, err = s.AdvanceStatus(ctx, "<unknown>", model.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.GetMessage(ctx, out.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Status)
	assert.Equal(t, string(model.StatusDelivered), *got.Status)
}

func TestLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(nil)
	require.NoError(t, s.AppendMessage(ctx, msg, nil, ""))

	require.NoError(t, s.AddLabel(ctx, msg.ID, "todo"))
	// duplicate insert is a no-op, not an error
	require.NoError(t, s.AddLabel(ctx, msg.ID, "todo"))
	require.NoError(t, s.AddLabel(ctx, msg.ID, "urgent"))

	labels, err := s.ListLabels(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"todo", "urgent"}, labels)

	msgs, err := s.ListMessages(ctx, MessageFilter{Label: "todo"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	require.NoError(t, s.RemoveLabel(ctx, msg.ID, "todo"))
	labels, err = s.ListLabels(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, labels)
}

func TestAttachmentVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := newMessage(func(m *model.Message) { m.Approved = false })
	att := model.Attachment{
		ID:         uuid.NewString(),
		Filename:   strptr("report.pdf"),
		StorageKey: "key/report.pdf",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.AppendMessage(ctx, msg, []model.Attachment{att}, ""))

	// Attachment of an unapproved message is not fetchable.
	_, err := s.GetAttachment(ctx, att.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ApproveSender(ctx, msg.From, nil)
	require.NoError(t, err)

	got, err := s.GetAttachment(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, "key/report.pdf", got.StorageKey)
}

func TestDraftLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty draft is valid.
	d := &model.Draft{}
	require.NoError(t, s.CreateDraft(ctx, d))
	require.NotEmpty(t, d.ID)

	updated, err := s.UpdateDraft(ctx, d.ID, DraftUpdate{
		To:      strptr("a@b.com"),
		Subject: strptr("X"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.To)
	assert.Equal(t, "a@b.com", *updated.To)
	require.NotNil(t, updated.Subject)

	// Partial update leaves other fields alone.
	updated, err = s.UpdateDraft(ctx, d.ID, DraftUpdate{BodyText: strptr("hi")})
	require.NoError(t, err)
	require.NotNil(t, updated.To)
	assert.Equal(t, "a@b.com", *updated.To)

	drafts, err := s.ListDrafts(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	require.NoError(t, s.DeleteDraft(ctx, d.ID))
	_, err = s.GetDraft(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteDraft(ctx, d.ID), ErrNotFound)
}

func TestAppendMessageDeletesDraftTransactionally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &model.Draft{To: strptr("a@b.com")}
	require.NoError(t, s.CreateDraft(ctx, d))

	msg := newMessage(func(m *model.Message) {
		m.Direction = model.DirectionOutbound
		m.Status = strptr(string(model.StatusSent))
	})
	require.NoError(t, s.AppendMessage(ctx, msg, nil, d.ID))

	_, err := s.GetDraft(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByAnyMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newMessage(func(m *model.Message) { m.MessageID = strptr("<m1@x>") })
	require.NoError(t, s.AppendMessage(ctx, first, nil, ""))
	second := newMessage(func(m *model.Message) { m.MessageID = strptr("<m2@x>") })
	require.NoError(t, s.AppendMessage(ctx, second, nil, ""))

	// Order of the id list decides which match wins.
	got, err := s.FindByAnyMessageID(ctx, []string{"<none@x>", "<m2@x>", "<m1@x>"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.FindByAnyMessageID(ctx, []string{"<none@x>"})
	assert.ErrorIs(t, err, ErrNotFound)
}
