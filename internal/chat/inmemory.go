package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process chat store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	chats map[string]*Chat
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chats: make(map[string]*Chat)}
}

func (s *InMemoryStore) Create(_ context.Context, c Chat) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.Created = now
	c.Updated = now
	for i := range c.Messages {
		c.Messages[i].Index = i
		if c.Messages[i].CreatedAt.IsZero() {
			c.Messages[i].CreatedAt = now
		}
	}

	stored := c
	s.chats[c.ID] = &stored
	return clone(&stored), nil
}

func (s *InMemoryStore) GetByID(_ context.Context, chatID string) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, chatID string, msg Message, terminate bool) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return Chat{}, ErrNotFound
	}

	msg.Index = len(c.Messages)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	c.Messages = append(c.Messages, msg)
	if terminate {
		c.TerminatedBySystem = true
	}
	c.Updated = time.Now().UTC()
	return clone(c), nil
}

func (s *InMemoryStore) ListByClient(_ context.Context, clientID string) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0)
	for _, c := range s.chats {
		if c.ClientID == clientID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (s *InMemoryStore) SetPublic(_ context.Context, chatID string, public bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	c.Public = public
	c.Updated = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) AppendReport(_ context.Context, chatID string, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	c.Reports = append(c.Reports, report)
	c.Updated = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func clone(c *Chat) Chat {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Reports = append([]Report(nil), c.Reports...)
	return out
}
