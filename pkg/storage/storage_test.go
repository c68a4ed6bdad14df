package storage_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/airank/pkg/storage"
	"github.com/devraulu/airank/pkg/storage/storagetest"
)

var start = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestSaveItemUpsertsByURL(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	id, err := s.SaveItem(ctx, storage.Item{URL: "https://example.com/a", Title: "First", Body: "<p>x</p>"})
	require.NoError(t, err)

	again, err := s.SaveItem(ctx, storage.Item{URL: "https://example.com/a", Title: "Second", Type: "page"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	it, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Second", it.Title)
	assert.Equal(t, "page", it.Type)
	assert.Equal(t, storage.StatusPublish, it.Status)

	found, ok, err := s.ItemIDByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, found)
}

func TestGetItemNotFound(t *testing.T) {
	_, err := storagetest.New(t).GetItem(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPublishedIDsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	a, _ := s.SaveItem(ctx, storage.Item{Title: "a", Type: "post"})
	b, _ := s.SaveItem(ctx, storage.Item{Title: "b", Type: "page"})
	_, _ = s.SaveItem(ctx, storage.Item{Title: "c", Type: "post", Status: "draft"})
	_, _ = s.SaveItem(ctx, storage.Item{Title: "d", Type: "product"})

	ids, err := s.ListPublishedIDs(ctx, []string{"post", "page"})
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, ids)
}

func TestMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	id, _ := s.SaveItem(ctx, storage.Item{Title: "a"})

	var missing int
	ok, err := s.GetMeta(ctx, id, "visibility_score", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, id, "visibility_score", 70))
	require.NoError(t, s.SetMeta(ctx, id, "visibility_score", 75))

	var got int
	ok, err = s.GetMeta(ctx, id, "visibility_score", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 75, got)

	require.NoError(t, s.DeleteMeta(ctx, id, "visibility_score"))
	ok, err = s.GetMeta(ctx, id, "visibility_score", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishedScores(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	a, _ := s.SaveItem(ctx, storage.Item{Title: "a"})
	b, _ := s.SaveItem(ctx, storage.Item{Title: "b", Type: "page"})
	c, _ := s.SaveItem(ctx, storage.Item{Title: "c", Status: "draft"})
	_, _ = s.SaveItem(ctx, storage.Item{Title: "unscored"})

	require.NoError(t, s.SetMeta(ctx, a, storage.MetaScore, 40))
	require.NoError(t, s.SetMeta(ctx, b, storage.MetaScore, 80))
	require.NoError(t, s.SetMeta(ctx, c, storage.MetaScore, 100))

	scores, err := s.PublishedScores(ctx, []string{"post", "page"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{40, 80}, scores)

	scores, err = s.PublishedScores(ctx, []string{"post"})
	require.NoError(t, err)
	assert.Equal(t, []float64{40}, scores)
}

func TestFindByTitle(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	self, _ := s.SaveItem(ctx, storage.Item{Title: "Kubernetes basics"})
	other, _ := s.SaveItem(ctx, storage.Item{Title: "Scaling KUBERNETES clusters"})
	_, _ = s.SaveItem(ctx, storage.Item{Title: "Test coverage"})
	_, _ = s.SaveItem(ctx, storage.Item{Title: "Kubernetes draft", Status: "draft"})

	items, err := s.FindByTitle(ctx, []string{"kubernetes"}, nil, self, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, other, items[0].ID)

	items, err = s.FindByTitle(ctx, []string{"_overage"}, nil, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.FindByTitle(ctx, []string{" "}, nil, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTransientsExpire(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(start)
	s := storagetest.New(t, storage.WithClock(clock.Now))

	require.NoError(t, s.SetTransient(ctx, "flag", "1", time.Minute))

	v, ok, err := s.GetTransient(ctx, "flag")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	clock.Advance(61 * time.Second)
	_, ok, err = s.GetTransient(ctx, "flag")
	require.NoError(t, err)
	assert.False(t, ok)

	taken, err := s.TakeTransient(ctx, "flag")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestTakeTransientOnce(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	require.NoError(t, s.SetTransient(ctx, "force_schema_1", "1", time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TakeTransient(ctx, "force_schema_1")
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(start)
	s := storagetest.New(t, storage.WithClock(clock.Now))

	ok, err := s.AcquireLock(ctx, "batch_lock", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "batch_lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be taken")

	clock.Advance(20 * time.Second)
	ok, err = s.RenewLock(ctx, "batch_lock", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(20 * time.Second)
	ok, err = s.AcquireLock(ctx, "batch_lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "renewed lease is still live")

	clock.Advance(11 * time.Second)
	ok, err = s.AcquireLock(ctx, "batch_lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be stolen")

	ok, err = s.RenewLock(ctx, "batch_lock", "a", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "batch_lock", "a"))
	_, held, err := s.GetTransient(ctx, "batch_lock")
	require.NoError(t, err)
	assert.True(t, held, "release by a non-owner is a no-op")

	require.NoError(t, s.ReleaseLock(ctx, "batch_lock", "b"))
	ok, err = s.AcquireLock(ctx, "batch_lock", "c", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(start)
	s := storagetest.New(t, storage.WithClock(clock.Now))

	require.NoError(t, s.SetTransient(ctx, "short", "1", time.Second))
	require.NoError(t, s.SetTransient(ctx, "long", "1", time.Hour))
	clock.Advance(time.Minute)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOptions(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	type state struct {
		Queue []int64 `json:"queue"`
	}
	var got state
	ok, err := s.GetOption(ctx, "batch_state", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetOption(ctx, "batch_state", state{Queue: []int64{1, 2}}))
	ok, err = s.GetOption(ctx, "batch_state", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 2}, got.Queue)
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)

	avg := 62.5
	_, err := s.InsertSnapshot(ctx, storage.SiteSnapshot{Date: "2026-03-01", AvgScore: &avg, ScannedCount: 4})
	require.NoError(t, err)
	_, err = s.InsertSnapshot(ctx, storage.SiteSnapshot{Date: "2026-03-08"})
	require.NoError(t, err)
	_, err = s.InsertSnapshot(ctx, storage.SiteSnapshot{Date: "2026-02-22", AvgScore: &avg, ScannedCount: 1})
	require.NoError(t, err)

	snaps, err := s.RecentSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-08", snaps[0].Date)
	assert.Nil(t, snaps[0].AvgScore)
	assert.Equal(t, 0, snaps[0].ScannedCount)
	assert.Equal(t, "2026-03-01", snaps[1].Date)
	require.NotNil(t, snaps[1].AvgScore)
	assert.InDelta(t, 62.5, *snaps[1].AvgScore, 0.001)

	all, err := s.RecentSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReplaceItemEntities(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	a, _ := s.SaveItem(ctx, storage.Item{Title: "a"})
	b, _ := s.SaveItem(ctx, storage.Item{Title: "b"})

	require.NoError(t, s.ReplaceItemEntities(ctx, a, []storage.Entity{
		{Name: "Go", Type: "technology", Role: "primary", Confidence: 95},
		{Name: "PostgreSQL", Type: "technology", Confidence: 70},
		{Name: "  ", Type: "other"},
	}))
	require.NoError(t, s.ReplaceItemEntities(ctx, b, []storage.Entity{
		{Name: "go", Type: "technology", Confidence: 60},
	}))

	got, err := s.EntitiesForItem(ctx, a)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "primary", got[0].Role)
	assert.Equal(t, "mentioned", got[1].Role)

	require.NoError(t, s.ReplaceItemEntities(ctx, a, []storage.Entity{
		{Name: "PostgreSQL", Type: "technology", Confidence: 90},
	}))
	got, err = s.EntitiesForItem(ctx, a)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PostgreSQL", got[0].Name)
	assert.Equal(t, 90, got[0].Confidence)

	got, err = s.EntitiesForItem(ctx, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "go", got[0].Name)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "node-js", storage.Slug(" Node.js "))
	assert.Equal(t, "", storage.Slug("--"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := storage.Open("mysql", "x")
	assert.Error(t, err)
}

func TestLockLeaseKeepsSubSecondLength(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(start.Add(900 * time.Millisecond))
	s := storagetest.New(t, storage.WithClock(clock.Now))

	ok, err := s.AcquireLock(ctx, "batch_lock", "a", 500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(400 * time.Millisecond)
	ok, err = s.AcquireLock(ctx, "batch_lock", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "lease crosses a second boundary but is still live")

	clock.Advance(101 * time.Millisecond)
	ok, err = s.AcquireLock(ctx, "batch_lock", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
