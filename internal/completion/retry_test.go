package completion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Fatalf("isRetryable(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := exponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := exponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), 3, time.Millisecond, time.Millisecond, func() (string, error) {
		calls++
		return "", &openai.APIError{HTTPStatusCode: 400}
	})
	if err == nil {
		t.Fatalf("withRetry() should return the error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	out, err := withRetry(context.Background(), 3, time.Millisecond, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &openai.APIError{HTTPStatusCode: 500}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out = %q after %d calls", out, calls)
	}
}

func TestValidateResult(t *testing.T) {
	schema := Schema{Name: "verdict", Required: []string{"is_safe", "reason"}}

	if err := validateResult(`{"is_safe":true,"reason":"ok"}`, schema); err != nil {
		t.Fatalf("validateResult() error = %v", err)
	}
	if err := validateResult(`{"is_safe":true}`, schema); err == nil {
		t.Fatalf("validateResult() should reject missing keys")
	}
	if err := validateResult(`not json`, schema); err == nil {
		t.Fatalf("validateResult() should reject malformed payloads")
	}
}

func TestStripCodeFence(t *testing.T) {
	raw := "```json\n{\"ok\":true}\n```"
	var obj map[string]bool
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &obj); err != nil {
		t.Fatalf("stripped payload not JSON: %v", err)
	}
	if !obj["ok"] {
		t.Fatalf("unexpected payload: %v", obj)
	}
	if got := stripCodeFence(`{"ok":true}`); got != `{"ok":true}` {
		t.Fatalf("unfenced payload changed: %q", got)
	}
}
