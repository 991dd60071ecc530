package chat

import "sync"

// Locks serializes turns that target the same chat id within one process.
// Cross-process concurrency is still only protected by the store's
// single-document atomic update; that limitation is accepted.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the per-chat lock is held and returns the release
// function. Entries are reference-counted so the registry stays bounded
// by the number of in-flight turns.
func (l *Locks) Acquire(chatID string) func() {
	l.mu.Lock()
	e, ok := l.entries[chatID]
	if !ok {
		e = &lockEntry{}
		l.entries[chatID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, chatID)
		}
		l.mu.Unlock()
	}
}
