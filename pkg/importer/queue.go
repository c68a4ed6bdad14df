package importer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/devraulu/airank/pkg/process"
)

type hostQueue struct {
	urls      []string
	nextVisit time.Time
}

// Queue hands out URLs one host at a time, keeping a politeness delay
// between two fetches of the same host. Each URL is queued at most once.
type Queue struct {
	mu     sync.Mutex
	queues map[string]*hostQueue
	seen   map[string]bool
	now    func() time.Time
}

func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{
		queues: make(map[string]*hostQueue),
		seen:   make(map[string]bool),
		now:    now,
	}
}

// Push queues a normalized URL and reports whether it was new.
func (q *Queue) Push(normalized string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[normalized] {
		slog.Debug("queue duplicate, skipping", slog.String("url", normalized))
		return false
	}

	host := process.Host(normalized)
	if host == "" {
		slog.Error("queue bad url", slog.String("url", normalized))
		return false
	}
	q.seen[normalized] = true

	hq, ok := q.queues[host]
	if !ok {
		hq = &hostQueue{}
		q.queues[host] = hq
	}
	hq.urls = append(hq.urls, normalized)
	return true
}

// Pop returns the next URL of a host whose delay has passed. When every host
// is still waiting it returns "" and the shortest wait.
func (q *Queue) Pop(delay time.Duration) (string, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	minWait := time.Duration(-1)

	for host, hq := range q.queues {
		if len(hq.urls) == 0 {
			delete(q.queues, host)
			continue
		}

		if !now.Before(hq.nextVisit) {
			u := hq.urls[0]
			hq.urls = hq.urls[1:]
			hq.nextVisit = now.Add(delay)
			return u, 0
		}

		wait := hq.nextVisit.Sub(now)
		if minWait == -1 || wait < minWait {
			minWait = wait
		}
	}

	return "", max(minWait, 0)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, hq := range q.queues {
		n += len(hq.urls)
	}
	return n
}
