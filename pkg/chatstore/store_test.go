package chatstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/test/util"
)

// runStoreSuite exercises the Store contract shared by both implementations.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) chatstore.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		chat, err := s.CreateChat(ctx, "sess-1", "Moon landing")
		require.NoError(t, err)
		assert.NotEmpty(t, chat.ID)
		assert.Equal(t, "sess-1", chat.SessionID)
		assert.False(t, chat.CreatedAt.IsZero())

		got, err := s.GetChat(ctx, chat.ID)
		require.NoError(t, err)
		assert.Equal(t, chat.ID, got.ID)
		assert.Equal(t, "Moon landing", got.Title)
		assert.Empty(t, got.Messages)
	})

	t.Run("get missing chat", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetChat(ctx, "11111111-2222-3333-4444-555555555555")
		require.ErrorIs(t, err, chatstore.ErrNotFound)
	})

	t.Run("append preserves order and metadata", func(t *testing.T) {
		s := newStore(t)
		chat, err := s.CreateChat(ctx, "sess-1", "")
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, chat.ID, "user", "is the claim true?", nil)
		require.NoError(t, err)
		msg, err := s.AppendMessage(ctx, chat.ID, "assistant", "<div>dashboard</div>", map[string]any{
			"is_html":         true,
			"is_v2_dashboard": true,
		})
		require.NoError(t, err)
		assert.NotZero(t, msg.ID)

		got, err := s.GetChat(ctx, chat.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "user", got.Messages[0].Role)
		assert.Equal(t, "assistant", got.Messages[1].Role)
		assert.Equal(t, true, got.Messages[1].Metadata["is_html"])
		assert.Equal(t, true, got.Messages[1].Metadata["is_v2_dashboard"])
	})

	t.Run("append to missing chat", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendMessage(ctx, "11111111-2222-3333-4444-555555555555", "user", "hi", nil)
		require.ErrorIs(t, err, chatstore.ErrNotFound)
	})

	t.Run("list is per session most recent first", func(t *testing.T) {
		s := newStore(t)
		first, err := s.CreateChat(ctx, "sess-a", "first")
		require.NoError(t, err)
		second, err := s.CreateChat(ctx, "sess-a", "second")
		require.NoError(t, err)
		_, err = s.CreateChat(ctx, "sess-b", "other session")
		require.NoError(t, err)

		// Appending bumps updated_at, moving the older chat to the front.
		time.Sleep(10 * time.Millisecond)
		_, err = s.AppendMessage(ctx, first.ID, "user", "bump", nil)
		require.NoError(t, err)

		chats, err := s.ListChats(ctx, "sess-a")
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, first.ID, chats[0].ID)
		assert.Equal(t, second.ID, chats[1].ID)
		assert.Empty(t, chats[0].Messages)
	})

	t.Run("delete chat", func(t *testing.T) {
		s := newStore(t)
		chat, err := s.CreateChat(ctx, "sess-1", "")
		require.NoError(t, err)
		require.NoError(t, s.DeleteChat(ctx, chat.ID))
		_, err = s.GetChat(ctx, chat.ID)
		require.ErrorIs(t, err, chatstore.ErrNotFound)
		require.ErrorIs(t, s.DeleteChat(ctx, chat.ID), chatstore.ErrNotFound)
	})

	t.Run("clear session", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateChat(ctx, "sess-x", "a")
		require.NoError(t, err)
		_, err = s.CreateChat(ctx, "sess-x", "b")
		require.NoError(t, err)
		keep, err := s.CreateChat(ctx, "sess-y", "c")
		require.NoError(t, err)

		n, err := s.ClearSession(ctx, "sess-x")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		chats, err := s.ListChats(ctx, "sess-x")
		require.NoError(t, err)
		assert.Empty(t, chats)
		_, err = s.GetChat(ctx, keep.ID)
		require.NoError(t, err)
	})

	t.Run("retention cutoff", func(t *testing.T) {
		s := newStore(t)
		old, err := s.CreateChat(ctx, "sess-r", "old")
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		cutoff := time.Now()
		time.Sleep(20 * time.Millisecond)

		fresh, err := s.CreateChat(ctx, "sess-r", "fresh")
		require.NoError(t, err)

		n, err := s.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetChat(ctx, old.ID)
		require.ErrorIs(t, err, chatstore.ErrNotFound)
		_, err = s.GetChat(ctx, fresh.ID)
		require.NoError(t, err)
	})

	t.Run("healthy", func(t *testing.T) {
		s := newStore(t)
		assert.True(t, s.Healthy(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) chatstore.Store {
		s := chatstore.NewMemory()
		t.Cleanup(s.Close)
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	runStoreSuite(t, func(t *testing.T) chatstore.Store {
		s, err := chatstore.NewPostgres(context.Background(), util.PostgresURL(t))
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}
