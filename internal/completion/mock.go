package completion

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Handler receives every call;
// when nil, responses are served per schema name in FIFO order.
type MockClient struct {
	mu        sync.Mutex
	Handler   func(req Request) (string, error)
	Responses map[string][]string
	Calls     []Request
}

func NewMockClient() *MockClient {
	return &MockClient{Responses: make(map[string][]string)}
}

func NewMockClientWithHandler(h func(req Request) (string, error)) *MockClient {
	m := NewMockClient()
	m.Handler = h
	return m
}

// Script queues responses for a schema name.
func (m *MockClient) Script(schemaName string, responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[schemaName] = append(m.Responses[schemaName], responses...)
}

func (m *MockClient) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	if m.Handler != nil {
		return m.Handler(req)
	}

	queue := m.Responses[req.Schema.Name]
	if len(queue) == 0 {
		return "{}", nil
	}
	out := queue[0]
	m.Responses[req.Schema.Name] = queue[1:]
	return out, nil
}

// CallCount returns how many calls targeted a schema name.
func (m *MockClient) CallCount(schemaName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Schema.Name == schemaName {
			n++
		}
	}
	return n
}
