// Package chatstore persists chats and their append-only messages. The
// Postgres implementation backs production; a memory implementation with the
// same semantics backs development and tests.
package chatstore

import (
	"context"
	"errors"
	"time"

	"github.com/parley-ai/parley/pkg/models"
)

// ErrNotFound is returned when a chat does not exist.
var ErrNotFound = errors.New("chat not found")

// Store is the chat persistence API.
type Store interface {
	// CreateChat creates an empty chat for a session.
	CreateChat(ctx context.Context, sessionID, title string) (*models.Chat, error)

	// ListChats returns a session's chats, most recently updated first,
	// without messages.
	ListChats(ctx context.Context, sessionID string) ([]models.Chat, error)

	// GetChat returns one chat with its messages in append order.
	GetChat(ctx context.Context, id string) (*models.Chat, error)

	// AppendMessage appends a message and bumps the chat's updated_at.
	AppendMessage(ctx context.Context, chatID, role, text string, metadata map[string]any) (*models.ChatMessage, error)

	// DeleteChat removes a chat and its messages.
	DeleteChat(ctx context.Context, id string) error

	// ClearSession removes all chats for a session, returning the count.
	ClearSession(ctx context.Context, sessionID string) (int, error)

	// DeleteOlderThan removes chats not updated since cutoff, returning the
	// count. Used by the retention sweep.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Healthy reports whether the backing store is reachable.
	Healthy(ctx context.Context) bool

	// Close releases the store's resources.
	Close()
}
