// Package history keeps a per-item score timeline with one entry per day.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	MetaKey    = "visibility_history"
	MaxEntries = 60
	DateLayout = "2006-01-02"
)

type Entry struct {
	Date  string `json:"date"`
	Score int    `json:"score"`
}

// Delta holds score changes against earlier entries. A nil field means there
// is no entry to compare with.
type Delta struct {
	SinceLast *int `json:"since_last"`
	SinceWeek *int `json:"since_week"`
}

// Meta is the slice of storage.ContentStore the timeline needs.
type Meta interface {
	GetMeta(ctx context.Context, id int64, key string, dst any) (bool, error)
	SetMeta(ctx context.Context, id int64, key string, value any) error
}

type Store struct {
	meta Meta
	mu   sync.Mutex
}

func New(meta Meta) *Store {
	return &Store{meta: meta}
}

// Date formats t as a history date in t's location.
func Date(t time.Time) string {
	return t.Format(DateLayout)
}

func (s *Store) Entries(ctx context.Context, id int64) ([]Entry, error) {
	var entries []Entry
	if _, err := s.meta.GetMeta(ctx, id, MetaKey, &entries); err != nil {
		return nil, fmt.Errorf("load history of item %d: %w", id, err)
	}
	return entries, nil
}

// Append records score for date, overwriting an existing entry for the same
// date. Entries stay sorted by date and only the newest MaxEntries are kept.
func (s *Store) Append(ctx context.Context, id int64, date string, score int) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid history date %q: %w", date, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.Entries(ctx, id)
	if err != nil {
		return err
	}

	byDate := make(map[string]int, len(entries)+1)
	for _, e := range entries {
		byDate[e.Date] = e.Score
	}
	byDate[date] = score

	merged := make([]Entry, 0, len(byDate))
	for d, sc := range byDate {
		merged = append(merged, Entry{Date: d, Score: sc})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	if len(merged) > MaxEntries {
		merged = merged[len(merged)-MaxEntries:]
	}

	if err := s.meta.SetMeta(ctx, id, MetaKey, merged); err != nil {
		return fmt.Errorf("save history of item %d: %w", id, err)
	}
	return nil
}

func (s *Store) Delta(ctx context.Context, id int64) (Delta, error) {
	entries, err := s.Entries(ctx, id)
	if err != nil {
		return Delta{}, err
	}
	return Compute(entries), nil
}

// Compute derives the deltas of a sorted timeline. SinceWeek compares the last
// score with the newest entry dated at least seven days before it.
func Compute(entries []Entry) Delta {
	var d Delta
	n := len(entries)
	if n < 2 {
		return d
	}

	last := entries[n-1]
	diff := last.Score - entries[n-2].Score
	d.SinceLast = &diff

	lastDate, err := time.Parse(DateLayout, last.Date)
	if err != nil {
		return d
	}
	cutoff := lastDate.AddDate(0, 0, -7).Format(DateLayout)
	for i := n - 2; i >= 0; i-- {
		if entries[i].Date <= cutoff {
			week := last.Score - entries[i].Score
			d.SinceWeek = &week
			break
		}
	}
	return d
}
