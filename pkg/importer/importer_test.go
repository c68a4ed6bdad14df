package importer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/airank/pkg/importer"
	"github.com/devraulu/airank/pkg/storage"
	"github.com/devraulu/airank/pkg/storage/storagetest"
)

func site(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	page := func(title, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<!DOCTYPE html><html><head><title>" + title + "</title></head><body><nav>menu</nav><article>" + body + "</article></body></html>"))
		}
	}
	mux.Handle("/a", page("Alpha", "<p>First page</p>"))
	mux.Handle("/b", page("Beta", "<p>Second page</p>"))
	mux.Handle("/private", page("Secret", "<p>hidden</p>"))
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunImportsSeeds(t *testing.T) {
	ctx := context.Background()
	srv := site(t)
	store := storagetest.New(t)

	var mu sync.Mutex
	var saved []storage.Item
	hook := func(_ context.Context, it storage.Item) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, it)
		return nil
	}

	im := importer.New(importer.Config{UserAgent: "airank-test", ItemType: "post", Workers: 2}, store,
		importer.WithHTTPClient(srv.Client()),
		importer.WithSaveHook(hook),
	)

	stats := im.Run(ctx, []string{
		srv.URL + "/a",
		srv.URL + "/b",
		srv.URL + "/a#again",
		srv.URL + "/private",
		srv.URL + "/logo.png",
		srv.URL + "/missing",
	})

	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Errored)
	require.Len(t, saved, 2)

	id, ok, err := store.ItemIDByURL(ctx, srv.URL+"/a")
	require.NoError(t, err)
	require.True(t, ok)

	it, err := store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", it.Title)
	assert.Equal(t, "<p>First page</p>", it.Body)
	assert.Equal(t, "post", it.Type)
	assert.Equal(t, storage.StatusPublish, it.Status)
	assert.NotContains(t, it.Body, "menu")
}

func TestRunReimportUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	srv := site(t)
	store := storagetest.New(t)

	im := importer.New(importer.Config{UserAgent: "airank-test"}, store, importer.WithHTTPClient(srv.Client()))
	im.Run(ctx, []string{srv.URL + "/a"})
	im.Run(ctx, []string{srv.URL + "/a"})

	ids, err := store.ListPublishedIDs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	im := importer.New(importer.Config{}, storagetest.New(t))
	stats := im.Run(ctx, []string{"https://example.invalid/a"})
	assert.Zero(t, stats.Imported)
}

func TestQueueRespectsHostDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := importer.NewQueue(func() time.Time { return now })

	assert.True(t, q.Push("https://a.example/1"))
	assert.True(t, q.Push("https://a.example/2"))
	assert.False(t, q.Push("https://a.example/1"))
	assert.Equal(t, 2, q.Len())

	u, wait := q.Pop(time.Second)
	assert.Equal(t, "https://a.example/1", u)
	assert.Zero(t, wait)

	u, wait = q.Pop(time.Second)
	assert.Empty(t, u)
	assert.Equal(t, time.Second, wait)

	now = now.Add(time.Second)
	u, _ = q.Pop(time.Second)
	assert.Equal(t, "https://a.example/2", u)
	assert.Zero(t, q.Len())
}

func TestReadSeeds(t *testing.T) {
	seeds, err := importer.ReadSeeds(strings.NewReader("# comment\nhttps://a.example/\n\n  https://b.example/x  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/x"}, seeds)

	_, err = importer.ReadSeeds(strings.NewReader("\n# nothing\n"))
	assert.ErrorIs(t, err, importer.ErrNoSeeds)
}
