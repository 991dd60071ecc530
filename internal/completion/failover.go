package completion

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// FailoverClient prefers the primary backend and switches to fallback when
// primary calls fail. Once fallback succeeds, it stays active until a
// fallback call fails; then primary is retried.
type FailoverClient struct {
	primary          Client
	fallback         Client
	fallbackProvider Provider
	logger           *slog.Logger
	events           func(name string)

	fallbackActive atomic.Bool
}

type FailoverOption func(*FailoverClient)

// WithFailoverEvents registers a callback invoked when the sticky
// fallback is activated or cleared.
func WithFailoverEvents(fn func(name string)) FailoverOption {
	return func(c *FailoverClient) { c.events = fn }
}

func NewFailoverClient(logger *slog.Logger, primary, fallback Client, fallbackProvider Provider, opts ...FailoverOption) *FailoverClient {
	c := &FailoverClient{
		primary:          primary,
		fallback:         fallback,
		fallbackProvider: fallbackProvider,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FailoverClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.fallbackActive.Load() {
		out, fbErr := c.fallback.Complete(ctx, c.fallbackRequest(req))
		if fbErr == nil {
			return out, nil
		}
		// Fallback failed after being active; try primary again.
		out, prErr := c.primary.Complete(ctx, req)
		if prErr == nil {
			c.fallbackActive.Store(false)
			c.event("failover_cleared")
			c.logger.InfoContext(ctx, "completion failover cleared", "schema", req.Schema.Name)
			return out, nil
		}
		return "", fmt.Errorf("completion fallback failed: %v; primary failed: %w", fbErr, prErr)
	}

	out, prErr := c.primary.Complete(ctx, req)
	if prErr == nil {
		return out, nil
	}

	out, fbErr := c.fallback.Complete(ctx, c.fallbackRequest(req))
	if fbErr != nil {
		return "", fmt.Errorf("completion primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	c.fallbackActive.Store(true)
	c.event("failover_activated")
	c.logger.WarnContext(ctx, "completion failover activated",
		"schema", req.Schema.Name, "primary_error", prErr)
	return out, nil
}

func (c *FailoverClient) event(name string) {
	if c.events != nil {
		c.events(name)
	}
}

// fallbackRequest redirects the call at the fallback backend and drops any
// primary-specific model override.
func (c *FailoverClient) fallbackRequest(req Request) Request {
	req.Provider = c.fallbackProvider
	req.Model = ""
	return req
}
