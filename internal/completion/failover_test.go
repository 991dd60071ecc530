package completion

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type flakyClient struct {
	failing bool
	calls   int
}

func (c *flakyClient) Complete(_ context.Context, _ Request) (string, error) {
	c.calls++
	if c.failing {
		return "", errors.New("backend down")
	}
	return `{"ok":true}`, nil
}

func TestFailoverSticksAfterPrimaryFailure(t *testing.T) {
	primary := &flakyClient{failing: true}
	fallback := &flakyClient{}
	fo := NewFailoverClient(slog.Default(), primary, fallback, ProviderDeepInfra)
	ctx := context.Background()
	req := Request{Schema: Schema{Name: "verdict"}}

	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallback.calls)
	}

	// While fallback is sticky, primary must not be consulted.
	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
}

func TestFailoverRecoversToPrimary(t *testing.T) {
	primary := &flakyClient{failing: true}
	fallback := &flakyClient{}
	fo := NewFailoverClient(slog.Default(), primary, fallback, ProviderDeepInfra)
	ctx := context.Background()
	req := Request{Schema: Schema{Name: "verdict"}}

	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// Fallback starts failing while primary has recovered.
	fallback.failing = true
	primary.failing = false
	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if fo.fallbackActive.Load() {
		t.Fatalf("fallback still active after primary recovered")
	}
}

func TestFailoverBothDown(t *testing.T) {
	primary := &flakyClient{failing: true}
	fallback := &flakyClient{failing: true}
	fo := NewFailoverClient(slog.Default(), primary, fallback, ProviderDeepInfra)

	if _, err := fo.Complete(context.Background(), Request{Schema: Schema{Name: "verdict"}}); err == nil {
		t.Fatalf("Complete() should fail when both backends are down")
	}
}

func TestFailoverEmitsEvents(t *testing.T) {
	primary := &flakyClient{failing: true}
	fallback := &flakyClient{}
	var events []string
	fo := NewFailoverClient(slog.Default(), primary, fallback, ProviderDeepInfra,
		WithFailoverEvents(func(name string) { events = append(events, name) }))
	ctx := context.Background()
	req := Request{Schema: Schema{Name: "verdict"}}

	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	fallback.failing = true
	primary.failing = false
	if _, err := fo.Complete(ctx, req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	want := []string{"failover_activated", "failover_cleared"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestFailoverRedirectsProvider(t *testing.T) {
	primary := &flakyClient{failing: true}
	fallback := NewMockClient()
	fallback.Script("verdict", `{"ok":true}`)
	fo := NewFailoverClient(slog.Default(), primary, fallback, ProviderDeepInfra)

	req := Request{Provider: ProviderDeepSeek, Model: "deepseek-chat", Schema: Schema{Name: "verdict"}}
	if _, err := fo.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got := fallback.Calls[0]
	if got.Provider != ProviderDeepInfra || got.Model != "" {
		t.Fatalf("fallback request not redirected: provider=%q model=%q", got.Provider, got.Model)
	}
}
