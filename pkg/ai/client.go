// Package ai is the text generation service used by enrichments.
package ai

import (
	"context"
	"errors"

	"github.com/devraulu/airank/pkg/config"
)

var (
	ErrNoKey         = errors.New("ai: no API key configured")
	ErrHTTP          = errors.New("ai: request failed")
	ErrEmptyResponse = errors.New("ai: empty response")
)

// IsServiceError reports whether err came from the text service rather than
// from the caller.
func IsServiceError(err error) bool {
	return errors.Is(err, ErrNoKey) || errors.Is(err, ErrHTTP) || errors.Is(err, ErrEmptyResponse)
}

type Options struct {
	MaxTokens   int
	Temperature float64
}

type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

type Mode string

const (
	ModeQuick Mode = "quick"
	ModeFull  Mode = "full"
)

// ParseMode maps a config value to a Mode, defaulting to ModeFull.
func ParseMode(s string) Mode {
	if Mode(s) == ModeQuick {
		return ModeQuick
	}
	return ModeFull
}

// Options returns the generation limits of the mode.
func (m Mode) Options() Options {
	if m == ModeQuick {
		return Options{MaxTokens: 250, Temperature: 0.3}
	}
	return Options{MaxTokens: 700, Temperature: 0.6}
}

// New builds the configured client: canned fixtures or OpenAI, behind the
// prompt cache when a cache TTL is set.
func New(cfg config.AIConfig, store Transients) Client {
	var c Client
	if cfg.Fixtures {
		c = Fixtures{}
	} else {
		c = NewOpenAI(cfg)
	}
	return NewCached(c, store, cfg.GetCacheTTL())
}
