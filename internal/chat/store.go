package chat

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a chat id does not resolve to a record.
var ErrNotFound = errors.New("chat not found")

// Store persists chat aggregates. The only mutations are message appends
// and single-document field updates; historical message content is never
// edited in place.
type Store interface {
	Create(ctx context.Context, c Chat) (Chat, error)
	GetByID(ctx context.Context, chatID string) (Chat, error)
	AppendMessage(ctx context.Context, chatID string, msg Message, terminate bool) (Chat, error)
	ListByClient(ctx context.Context, clientID string) ([]Chat, error)
	SetPublic(ctx context.Context, chatID string, public bool) error
	AppendReport(ctx context.Context, chatID string, report Report) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
