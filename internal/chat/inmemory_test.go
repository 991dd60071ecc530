package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAppendAssignsMonotonicIndices(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c, err := s.Create(ctx, Chat{
		ClientID:  "client-1",
		CountryID: 2,
		Messages:  []Message{{Role: RoleUser, Blocks: []Block{TextBlock("hola")}}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID == "" {
		t.Fatalf("Create() should mint a chat id")
	}

	for i := 0; i < 5; i++ {
		c, err = s.AppendMessage(ctx, c.ID, Message{Role: RoleAssistant, Blocks: []Block{MarkdownBlock("x")}}, false)
		if err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	for i, m := range c.Messages {
		if m.Index != i {
			t.Fatalf("message %d has index %d", i, m.Index)
		}
		if m.CreatedAt.IsZero() {
			t.Fatalf("message %d has zero timestamp", i)
		}
	}
}

func TestTerminateFlagLatches(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c, _ := s.Create(ctx, Chat{ClientID: "client-1"})
	c, err := s.AppendMessage(ctx, c.ID, Message{Role: RoleAssistant, Blocks: []Block{NotificationBlock("stop")}}, true)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if !c.TerminatedBySystem {
		t.Fatalf("terminate flag not set")
	}

	// A later non-terminating append must not reset the flag.
	c, err = s.AppendMessage(ctx, c.ID, Message{Role: RoleSystem, Blocks: []Block{NotificationBlock("note")}}, false)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if !c.TerminatedBySystem {
		t.Fatalf("terminate flag was reset by later append")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestListByClientFiltersAndReports(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	a, _ := s.Create(ctx, Chat{ClientID: "client-a"})
	_, _ = s.Create(ctx, Chat{ClientID: "client-b"})

	if err := s.AppendReport(ctx, a.ID, Report{AnswerIndex: 0, Message: "wrong"}); err != nil {
		t.Fatalf("AppendReport() error = %v", err)
	}
	if err := s.SetPublic(ctx, a.ID, true); err != nil {
		t.Fatalf("SetPublic() error = %v", err)
	}

	chats, err := s.ListByClient(ctx, "client-a")
	if err != nil {
		t.Fatalf("ListByClient() error = %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("ListByClient() = %d chats, want 1", len(chats))
	}
	if len(chats[0].Reports) != 1 || !chats[0].Public {
		t.Fatalf("chat state not persisted: %+v", chats[0])
	}
}

func TestLocksSerializeSameChat(t *testing.T) {
	locks := NewLocks()
	var inside int32
	var counter int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("chat-1")
			defer release()

			if !atomic.CompareAndSwapInt32(&inside, 0, 1) {
				t.Error("two turns entered the critical section for one chat")
			}
			atomic.AddInt32(&counter, 1)
			atomic.StoreInt32(&inside, 0)
		}()
	}
	wg.Wait()

	if counter != 16 {
		t.Fatalf("counter = %d, want 16", counter)
	}
}
