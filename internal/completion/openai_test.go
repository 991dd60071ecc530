package completion

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteInvokesErrorHookPerFailedCall(t *testing.T) {
	var serverCalls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serverCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "backend down", "type": "server_error"}}`))
	}))
	defer ts.Close()

	type hookCall struct {
		provider Provider
		schema   string
	}
	var hooks []hookCall
	c := NewOpenAIClient(slog.Default(), map[Provider]BackendConfig{
		ProviderDeepSeek: {APIKey: "test-key", BaseURL: ts.URL, Model: "test-model"},
	},
		WithRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
		WithErrorHook(func(p Provider, schema string) {
			hooks = append(hooks, hookCall{provider: p, schema: schema})
		}),
	)

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hola"}},
		Schema:   Schema{Name: "verdict"},
	})
	if err == nil {
		t.Fatalf("Complete() should fail when the backend keeps returning 500")
	}
	// 500 is retryable, so both attempts hit the backend and the hook.
	if serverCalls != 2 {
		t.Fatalf("backend calls = %d, want 2", serverCalls)
	}
	if len(hooks) != 2 {
		t.Fatalf("hook calls = %d, want 2", len(hooks))
	}
	for _, h := range hooks {
		if h.provider != ProviderDeepSeek || h.schema != "verdict" {
			t.Fatalf("hook call = %+v", h)
		}
	}
}
