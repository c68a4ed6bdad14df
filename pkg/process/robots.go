package process

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benjaminestes/robots"
)

// AICrawlers are the user agents of the AI search and training crawlers
// checked by AuditAICrawlers.
var AICrawlers = []string{
	"GPTBot",
	"ChatGPT-User",
	"OAI-SearchBot",
	"ClaudeBot",
	"PerplexityBot",
	"Google-Extended",
	"CCBot",
}

// RobotsCache fetches and caches robots.txt per robots URL.
type RobotsCache struct {
	client *http.Client
	mu     sync.Mutex
	cache  map[string]*robots.Robots
}

func NewRobotsCache(client *http.Client) *RobotsCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsCache{
		client: client,
		cache:  make(map[string]*robots.Robots),
	}
}

// Allowed reports whether agent may fetch url. Unreachable or unparseable
// robots.txt files are treated as allowing everything.
func (c *RobotsCache) Allowed(agent, url string) bool {
	r := c.get(url)
	return r == nil || r.Test(agent, url)
}

func (c *RobotsCache) get(url string) (r *robots.Robots) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", slog.String("url", url), slog.Any("panic", rec))
			r = nil
		}
	}()

	robotsURL, err := robots.Locate(url)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.cache[robotsURL]; ok {
		return r
	}

	r, err = c.fetch(robotsURL)
	if err != nil {
		slog.Warn("failed to fetch robots.txt", slog.String("url", robotsURL), slog.Any("err", err))
		c.cache[robotsURL] = nil
		return nil
	}

	c.cache[robotsURL] = r
	return r
}

func (c *RobotsCache) fetch(url string) (*robots.Robots, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Debug("robots.txt response",
		slog.String("url", url),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("body_length", len(body)),
	)

	return robots.From(resp.StatusCode, bytes.NewReader(body))
}

type CrawlerAccess struct {
	Agent   string `json:"agent"`
	Allowed bool   `json:"allowed"`
}

// AuditAICrawlers reports, for each known AI crawler, whether the site's
// robots.txt lets it fetch siteURL.
func AuditAICrawlers(siteURL string, client *http.Client) ([]CrawlerAccess, error) {
	robotsURL, err := robots.Locate(siteURL)
	if err != nil {
		return nil, fmt.Errorf("locate robots.txt: %w", err)
	}

	c := NewRobotsCache(client)
	r, err := c.fetch(robotsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}

	out := make([]CrawlerAccess, 0, len(AICrawlers))
	for _, agent := range AICrawlers {
		out = append(out, CrawlerAccess{Agent: agent, Allowed: r.Test(agent, siteURL)})
	}
	return out, nil
}
