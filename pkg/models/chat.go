package models

import "time"

// Chat metadata keys preserved round-trip through the chat store.
const (
	ChatMetaIsHTML        = "is_html"
	ChatMetaIsV2Dashboard = "is_v2_dashboard"
)

// Chat is a persisted conversation owned by a session.
type Chat struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}

// ChatMessage is one append-only entry in a chat.
type ChatMessage struct {
	ID        int64          `json:"id"`
	ChatID    string         `json:"chat_id"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"ts"`
}

// ChatTurn is a lightweight (role, content) pair used for short-term
// conversation context.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateChatRequest contains fields for creating a chat.
type CreateChatRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title,omitempty"`
}

// AppendChatMessageRequest contains fields for appending a chat message.
type AppendChatMessageRequest struct {
	Role     string         `json:"role"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
