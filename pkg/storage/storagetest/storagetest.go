// Package storagetest opens migrated SQLite stores for tests.
package storagetest

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devraulu/airank/pkg/storage"
)

// New returns a store backed by a fresh SQLite file under t.TempDir.
func New(t testing.TB, opts ...storage.Option) *storage.SQLStore {
	t.Helper()

	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db, storage.DriverSQLite))

	s := storage.NewSQLStore(db, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
