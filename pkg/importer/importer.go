// Package importer loads pages listed in a seeds file into the content
// store and hands each saved item to the analyzer.
package importer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/devraulu/airank/pkg/process"
	"github.com/devraulu/airank/pkg/storage"
)

type Stats struct {
	StartTime time.Time
	Imported  int
	Errored   int
	Skipped   int
}

func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

func (s *Stats) ItemsPerSecond() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Imported) / elapsed
}

type Store interface {
	SaveItem(ctx context.Context, item storage.Item) (int64, error)
}

// SaveHook runs after an item is stored, typically the analyzer's save
// handler.
type SaveHook func(ctx context.Context, item storage.Item) error

type Config struct {
	UserAgent string
	ItemType  string
	Delay     time.Duration
	Workers   int
}

type Importer struct {
	cfg    Config
	store  Store
	hook   SaveHook
	robots *process.RobotsCache
	client *http.Client
	Stats  Stats
}

type Option func(*Importer)

func WithHTTPClient(c *http.Client) Option {
	return func(im *Importer) { im.client = c }
}

func WithSaveHook(h SaveHook) Option {
	return func(im *Importer) { im.hook = h }
}

func WithRobots(r *process.RobotsCache) Option {
	return func(im *Importer) { im.robots = r }
}

func New(cfg Config, store Store, opts ...Option) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.ItemType == "" {
		cfg.ItemType = "page"
	}
	im := &Importer{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.robots == nil {
		im.robots = process.NewRobotsCache(im.client)
	}
	return im
}

// Run imports every seed and returns once all of them were fetched or ctx
// ends.
func (im *Importer) Run(ctx context.Context, seeds []string) Stats {
	im.Stats = Stats{StartTime: time.Now()}

	q := NewQueue(nil)
	for _, seed := range seeds {
		normalized, err := process.Normalize(seed)
		if err != nil {
			slog.Error("couldn't normalize seed", slog.String("seed", seed), slog.Any("err", err))
			continue
		}
		q.Push(normalized)
	}

	// jobs is unbuffered so at most Workers results are ever outstanding.
	jobs := make(chan string)
	results := make(chan result, im.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < im.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			im.worker(ctx, id, jobs, results)
		}(i)
	}

	im.coordinate(ctx, q, jobs, results)
	close(jobs)
	wg.Wait()

	slog.Info("import complete",
		slog.Int("imported", im.Stats.Imported),
		slog.Int("errored", im.Stats.Errored),
		slog.Int("skipped", im.Stats.Skipped),
		slog.Duration("elapsed", im.Stats.Elapsed()),
		slog.Float64("items_per_sec", im.Stats.ItemsPerSecond()),
	)
	return im.Stats
}

func (im *Importer) coordinate(ctx context.Context, q *Queue, jobs chan<- string, results <-chan result) {
	active := 0
	next := ""
	for {
		if ctx.Err() != nil {
			return
		}
		if next == "" && q.Len() == 0 && active == 0 {
			return
		}

		var (
			jobsChan chan<- string
			wait     <-chan time.Time
		)
		if next == "" && q.Len() > 0 {
			u, delay := q.Pop(im.cfg.Delay)
			if u == "" {
				wait = time.After(delay)
			} else if !im.robots.Allowed(im.cfg.UserAgent, u) {
				slog.Info("robots.txt disallowed", slog.String("url", u))
				im.Stats.Skipped++
				continue
			} else {
				next = u
			}
		}
		if next != "" {
			jobsChan = jobs
		}

		select {
		case jobsChan <- next:
			active++
			slog.Debug("job dispatched", slog.String("url", next), slog.Int("active_workers", active))
			next = ""
		case res := <-results:
			active--
			im.processResult(ctx, res)
		case <-wait:
		case <-ctx.Done():
			return
		}
	}
}

func (im *Importer) processResult(ctx context.Context, res result) {
	if res.err != nil {
		im.Stats.Errored++
		slog.Error("import failed", slog.String("url", res.url), slog.Any("err", res.err))
		return
	}
	if res.page == nil {
		im.Stats.Skipped++
		return
	}

	item := storage.Item{
		URL:    res.url,
		Title:  res.page.Title,
		Body:   res.page.BodyHTML,
		Type:   im.cfg.ItemType,
		Status: storage.StatusPublish,
	}
	id, err := im.store.SaveItem(ctx, item)
	if err != nil {
		im.Stats.Errored++
		slog.Error("failed to save item", slog.String("url", res.url), slog.Any("err", err))
		return
	}
	item.ID = id
	im.Stats.Imported++

	slog.Info("import success",
		slog.String("url", res.url),
		slog.Int64("id", id),
		slog.Int("imported", im.Stats.Imported),
	)

	if im.hook != nil {
		if err := im.hook(ctx, item); err != nil {
			slog.Error("save hook failed", slog.Int64("id", id), slog.Any("err", err))
		}
	}
}
