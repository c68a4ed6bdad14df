package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

type Transients interface {
	SetTransient(ctx context.Context, name, value string, ttl time.Duration) error
	GetTransient(ctx context.Context, name string) (string, bool, error)
}

// Cached stores successful completions in the transient store keyed by a hash
// of the prompt and options. Cache failures fall through to the client.
type Cached struct {
	next  Client
	store Transients
	ttl   time.Duration
}

// NewCached wraps next. A non-positive ttl disables caching and returns next.
func NewCached(next Client, store Transients, ttl time.Duration) Client {
	if ttl <= 0 {
		return next
	}
	return &Cached{next: next, store: store, ttl: ttl}
}

func CacheKey(prompt string, opts Options) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%g|%s", opts.MaxTokens, opts.Temperature, prompt))
	return "ai_" + hex.EncodeToString(sum[:16])
}

func (c *Cached) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	key := CacheKey(prompt, opts)

	v, ok, err := c.store.GetTransient(ctx, key)
	if err != nil {
		slog.Warn("ai cache read failed", slog.String("key", key), slog.Any("err", err))
	} else if ok {
		slog.Debug("ai cache hit", slog.String("key", key))
		return v, nil
	}

	resp, err := c.next.Complete(ctx, prompt, opts)
	if err != nil {
		return "", err
	}

	if err := c.store.SetTransient(ctx, key, resp, c.ttl); err != nil {
		slog.Warn("ai cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return resp, nil
}
