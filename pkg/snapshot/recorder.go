// Package snapshot records site-wide visibility snapshots and sends the
// weekly report built from them.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/storage"
)

type Store interface {
	PublishedScores(ctx context.Context, types []string) ([]float64, error)
	storage.SnapshotStore
}

type Recorder struct {
	store Store
	types []string
	loc   *time.Location
	now   func() time.Time
	log   *slog.Logger
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

func NewRecorder(store Store, types []string, loc *time.Location, opts ...Option) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	r := &Recorder{store: store, types: types, loc: loc, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores the mean score of every scored published item in scope.
// With nothing scored the average is nil and the count zero. Each call adds
// a row, even on the same day.
func (r *Recorder) Record(ctx context.Context) (storage.SiteSnapshot, error) {
	scores, err := r.store.PublishedScores(ctx, r.types)
	if err != nil {
		return storage.SiteSnapshot{}, fmt.Errorf("load published scores: %w", err)
	}

	now := r.now()
	snap := storage.SiteSnapshot{
		Date:         history.Date(now.In(r.loc)),
		ScannedCount: len(scores),
		CreatedAt:    now,
	}
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		avg := sum / float64(len(scores))
		snap.AvgScore = &avg
	}

	id, err := r.store.InsertSnapshot(ctx, snap)
	if err != nil {
		return storage.SiteSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	snap.ID = id

	r.log.Info("site snapshot recorded",
		slog.String("date", snap.Date),
		slog.Int("scanned", snap.ScannedCount),
	)
	return snap, nil
}

// Recent returns snapshots newest first; limit <= 0 returns all of them.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]storage.SiteSnapshot, error) {
	return r.store.RecentSnapshots(ctx, limit)
}
