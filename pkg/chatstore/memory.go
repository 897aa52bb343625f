package chatstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/models"
)

// MemoryStore is the in-process Store used when DATABASE_URL is unset.
type MemoryStore struct {
	mu     sync.RWMutex
	chats  map[string]*models.Chat
	nextID int64
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{chats: make(map[string]*models.Chat)}
}

func (s *MemoryStore) CreateChat(_ context.Context, sessionID, title string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	chat := &models.Chat{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chat.ID] = chat
	return copyChat(chat, false), nil
}

func (s *MemoryStore) ListChats(_ context.Context, sessionID string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Chat{}
	for _, chat := range s.chats {
		if chat.SessionID == sessionID {
			out = append(out, *copyChat(chat, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) GetChat(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChat(chat, true), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, chatID, role, text string, metadata map[string]any) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	s.nextID++
	msg := models.ChatMessage{
		ID:        s.nextID,
		ChatID:    chatID,
		Role:      role,
		Text:      text,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = msg.CreatedAt
	return &msg, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		return ErrNotFound
	}
	delete(s.chats, id)
	return nil
}

func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, chat := range s.chats {
		if chat.SessionID == sessionID {
			delete(s.chats, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, chat := range s.chats {
		if chat.UpdatedAt.Before(cutoff) {
			delete(s.chats, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Healthy(context.Context) bool { return true }

func (s *MemoryStore) Close() {}

func copyChat(chat *models.Chat, withMessages bool) *models.Chat {
	out := *chat
	out.Messages = nil
	if withMessages {
		out.Messages = append([]models.ChatMessage{}, chat.Messages...)
	}
	return &out
}
