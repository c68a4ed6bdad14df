package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/scoring"
	"github.com/devraulu/airank/pkg/storage"
	"github.com/devraulu/airank/pkg/storage/storagetest"
)

var now = time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)

type recorder struct {
	name   string
	events *[]string
	err    error
	panic  bool
}

func (r recorder) Name() string { return r.name }

func (r recorder) OnAnalyzed(_ context.Context, ev Event) error {
	*r.events = append(*r.events, r.name+":"+string(ev.Trigger))
	if r.panic {
		panic("boom")
	}
	return r.err
}

type armer struct{ ids []int64 }

func (a *armer) ArmAll(_ context.Context, id int64) error {
	a.ids = append(a.ids, id)
	return nil
}

func setup(t *testing.T, opts ...Option) (*Analyzer, *storage.SQLStore) {
	t.Helper()
	s := storagetest.New(t)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	a := New(s, history.New(s), Config{SiteURL: "https://example.com", Types: []string{"post", "page"}}, opts...)
	return a, s
}

const body = `<h2>What is it?</h2><p>Go is a language. It is simple and fast.</p>
<h2>Why?</h2><p>Because it compiles quickly.</p><a href="/a">a</a><a href="/b">b</a>`

func TestAnalyzePersistsResults(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t)
	id, err := s.SaveItem(ctx, storage.Item{Title: "Go", Body: body})
	require.NoError(t, err)

	m, err := a.Analyze(ctx, id, TriggerBatch)
	require.NoError(t, err)
	assert.Equal(t, 2, m.H2Count)
	assert.Equal(t, 2, m.InternalLinks)

	score, ok, err := a.Score(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scoring.Score(m), score)

	var stored scoring.Metrics
	ok, err = s.GetMeta(ctx, id, MetaData, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, stored)

	var last int64
	ok, err = s.GetMeta(ctx, id, MetaLastRun, &last)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Unix(), last)

	entries, err := history.New(s).Entries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []history.Entry{{Date: "2026-03-02", Score: score}}, entries)
}

func TestAnalyzeUsesSiteTimezoneForHistory(t *testing.T) {
	ctx := context.Background()
	s := storagetest.New(t)
	loc := time.FixedZone("UTC+2", 2*60*60)
	a := New(s, history.New(s), Config{Location: loc}, WithClock(func() time.Time { return now }))
	id, _ := s.SaveItem(ctx, storage.Item{Title: "x"})

	_, err := a.Analyze(ctx, id, TriggerBatch)
	require.NoError(t, err)

	entries, err := history.New(s).Entries(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2026-03-03", entries[0].Date)
}

func TestAnalyzeSameDayOverwritesHistory(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t)
	id, _ := s.SaveItem(ctx, storage.Item{Title: "Go", Body: "<p>short</p>"})

	_, err := a.Analyze(ctx, id, TriggerBatch)
	require.NoError(t, err)
	_, err = a.Analyze(ctx, id, TriggerManual)
	require.NoError(t, err)

	entries, err := history.New(s).Entries(ctx, id)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAnalyzeFoldsAIFlags(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t)
	id, _ := s.SaveItem(ctx, storage.Item{Title: "Go", Body: body})

	require.NoError(t, s.SetMeta(ctx, id, MetaAISummary, "<p>summary</p>"))
	require.NoError(t, s.SetMeta(ctx, id, MetaAIQA, "  "))

	m, err := a.Analyze(ctx, id, TriggerBatch)
	require.NoError(t, err)
	assert.True(t, m.HasAISummary)
	assert.False(t, m.HasAIQA)
}

func TestAnalyzeMissingItem(t *testing.T) {
	a, _ := setup(t)
	_, err := a.Analyze(context.Background(), 99, TriggerBatch)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubscribersRunInOrderAndFailuresAreContained(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t)
	id, _ := s.SaveItem(ctx, storage.Item{Title: "Go", Body: body})

	var events []string
	a.Subscribe(
		recorder{name: "first", events: &events, err: errors.New("ai down")},
		recorder{name: "second", events: &events, panic: true},
		recorder{name: "third", events: &events},
	)

	_, err := a.Analyze(ctx, id, TriggerSave)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:save", "second:save", "third:save"}, events)
}

func TestAnalyzeAdjusters(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t, WithAdjusters(func(int, scoring.Metrics) int { return 500 }))
	id, _ := s.SaveItem(ctx, storage.Item{Title: "Go"})

	_, err := a.Analyze(ctx, id, TriggerBatch)
	require.NoError(t, err)
	score, _, err := a.Score(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestAnalyzeManualArmsFirst(t *testing.T) {
	ctx := context.Background()
	arm := &armer{}
	a, s := setup(t, WithArmer(arm))
	id, _ := s.SaveItem(ctx, storage.Item{Title: "Go"})

	var events []string
	a.Subscribe(recorder{name: "sub", events: &events})

	_, err := a.AnalyzeManual(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, arm.ids)
	assert.Equal(t, []string{"sub:manual"}, events)
}

func TestHandleSaveFiltersScope(t *testing.T) {
	ctx := context.Background()
	a, s := setup(t)

	var events []string
	a.Subscribe(recorder{name: "sub", events: &events})

	product, _ := s.SaveItem(ctx, storage.Item{Title: "p", Type: "product"})
	trashed, _ := s.SaveItem(ctx, storage.Item{Title: "t", Status: "trash"})
	post, _ := s.SaveItem(ctx, storage.Item{Title: "ok"})

	require.NoError(t, a.HandleSave(ctx, storage.Item{ID: product, Type: "product", Status: "publish"}))
	require.NoError(t, a.HandleSave(ctx, storage.Item{ID: trashed, Type: "post", Status: "trash"}))
	require.NoError(t, a.HandleSave(ctx, storage.Item{ID: post, Type: "post", Status: "publish"}))

	assert.Equal(t, []string{"sub:save"}, events)
}
