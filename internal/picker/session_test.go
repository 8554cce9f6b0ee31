package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-picker/internal/catalog"
	"product-picker/internal/clock"
	"product-picker/internal/model"
)

func makeProducts(prefix string, n int) []model.Product {
	out := make([]model.Product, n)
	for i := range out {
		id := model.ID(fmt.Sprintf("%s%d", prefix, i))
		out[i] = model.Product{
			ID:    id,
			Title: "Product " + string(id),
			Variants: []model.Variant{
				{ID: id + "-a", ProductID: id, Title: "A", Price: decimal.NewFromInt(10)},
				{ID: id + "-b", ProductID: id, Title: "B", Price: decimal.NewFromInt(12)},
			},
		}
	}
	return out
}

// recordingSearcher serves pages from a map keyed by "text/page" and records
// every query it sees. Unknown keys return an empty page.
type recordingSearcher struct {
	mu      sync.Mutex
	pages   map[string][]model.Product
	queries []catalog.Query
	err     error
}

func (r *recordingSearcher) Search(ctx context.Context, q catalog.Query) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, r.err
	}
	return r.pages[fmt.Sprintf("%s/%d", q.Text, q.Page)], nil
}

func (r *recordingSearcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

func newTestSession(t *testing.T, s catalog.Searcher, opts Options) (*Session, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	opts.Clock = clk
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, nil, opts), clk
}

func TestInitialState(t *testing.T) {
	sess, _ := newTestSession(t, &catalog.Mock{}, Options{})

	snap := sess.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.HasMore)
	assert.Equal(t, 0, snap.Page)
	assert.Empty(t, snap.Results)
	assert.NotNil(t, snap.Selection)
}

func TestTwoPagesAccumulate(t *testing.T) {
	searcher := &recordingSearcher{pages: map[string][]model.Product{
		"/0": makeProducts("a", 10),
		"/1": makeProducts("b", 10),
	}}
	sess, _ := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	out, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)

	out, err = sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)

	snap := sess.Snapshot()
	assert.Len(t, snap.Results, 20)
	assert.Equal(t, 2, snap.Page)
	assert.True(t, snap.HasMore)

	require.Len(t, searcher.queries, 2)
	assert.Equal(t, catalog.Query{Page: 0, Limit: 10, Text: ""}, searcher.queries[0])
	assert.Equal(t, catalog.Query{Page: 1, Limit: 10, Text: ""}, searcher.queries[1])
}

func TestEmptyFirstPageEndsResults(t *testing.T) {
	searcher := &recordingSearcher{pages: map[string][]model.Product{}}
	sess, _ := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	out, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, out)

	snap := sess.Snapshot()
	assert.False(t, snap.HasMore)
	assert.Empty(t, snap.Results)

	for i := 0; i < 3; i++ {
		out, err = sess.LoadNextPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, out)
	}
	assert.Equal(t, 1, searcher.count(), "no fetch after has-more cleared")
}

func TestFetchFailureIsRetryable(t *testing.T) {
	searcher := &recordingSearcher{pages: map[string][]model.Product{
		"/0": makeProducts("a", 10),
		"/1": makeProducts("b", 3),
	}}
	sess, _ := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	_, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)

	searcher.err = model.NewUpstreamError("catalog", errors.New("connection reset"))
	out, err := sess.LoadNextPage(ctx)
	assert.Equal(t, OutcomeFailed, out)
	assert.True(t, errors.Is(err, model.ErrUpstreamError))

	snap := sess.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Len(t, snap.Results, 10)
	assert.Equal(t, 1, snap.Page)
	assert.True(t, snap.HasMore)
	assert.Contains(t, snap.LastError, "UPSTREAM_ERROR")

	searcher.err = nil
	out, err = sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)

	snap = sess.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Len(t, snap.Results, 13)
	assert.Equal(t, 2, snap.Page)
}

func TestDebounceCommitsOnlyLatestText(t *testing.T) {
	searcher := &recordingSearcher{pages: map[string][]model.Product{
		"/0": makeProducts("a", 10),
	}}
	sess, clk := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	_, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.SetSearchText("t"))
	clk.Advance(200 * time.Millisecond)
	require.NoError(t, sess.SetSearchText("to"))
	clk.Advance(200 * time.Millisecond)
	require.NoError(t, sess.SetSearchText("tow"))

	snap := sess.Snapshot()
	assert.Equal(t, StateDebouncing, snap.State)
	assert.Equal(t, "tow", snap.SearchText)
	assert.Equal(t, "", snap.DebouncedText)
	assert.Len(t, snap.Results, 10, "results kept until the window elapses")
	assert.Equal(t, 1, clk.Pending(), "earlier timers cancelled")

	clk.Advance(499 * time.Millisecond)
	assert.Equal(t, "", sess.Snapshot().DebouncedText)

	clk.Advance(time.Millisecond)
	snap = sess.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, "tow", snap.DebouncedText)
	assert.Equal(t, 0, snap.Page)
	assert.Empty(t, snap.Results)
	assert.True(t, snap.HasMore)
	assert.Equal(t, uint64(1), snap.Generation)
}

func TestSearchResetsExhaustedQuery(t *testing.T) {
	searcher := &recordingSearcher{pages: map[string][]model.Product{
		"towel/0": makeProducts("t", 2),
	}}
	sess, clk := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	out, _ := sess.LoadNextPage(ctx)
	require.Equal(t, OutcomeExhausted, out)

	require.NoError(t, sess.SetSearchText("towel"))
	clk.Advance(DefaultDebounce)

	out, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)
	assert.Equal(t, "towel", searcher.queries[1].Text)
	assert.Equal(t, 0, searcher.queries[1].Page)
}

func TestFlush(t *testing.T) {
	sess, clk := newTestSession(t, &catalog.Mock{}, Options{})

	assert.False(t, sess.Flush())
	require.NoError(t, sess.SetSearchText("mug"))
	assert.True(t, sess.Flush())
	assert.Equal(t, "mug", sess.Snapshot().DebouncedText)
	assert.Equal(t, 0, clk.Pending())

	// The stopped timer must not fire a second commit.
	clk.Advance(time.Second)
	assert.Equal(t, uint64(1), sess.Snapshot().Generation)
}

func TestCustomDebounce(t *testing.T) {
	sess, clk := newTestSession(t, &catalog.Mock{}, Options{Debounce: 50 * time.Millisecond})

	require.NoError(t, sess.SetSearchText("x"))
	clk.Advance(50 * time.Millisecond)
	assert.Equal(t, "x", sess.Snapshot().DebouncedText)
}

// blockingSearcher parks every call until release is closed.
type blockingSearcher struct {
	started chan catalog.Query
	release chan struct{}
	result  []model.Product
}

func (b *blockingSearcher) Search(ctx context.Context, q catalog.Query) ([]model.Product, error) {
	b.started <- q
	<-b.release
	return b.result, nil
}

func TestInFlightFetchSuppressesDuplicates(t *testing.T) {
	searcher := &blockingSearcher{
		started: make(chan catalog.Query, 4),
		release: make(chan struct{}),
		result:  makeProducts("a", 10),
	}
	sess, _ := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() {
		out, _ := sess.LoadNextPage(ctx)
		done <- out
	}()
	<-searcher.started

	assert.Equal(t, StateFetching, sess.Snapshot().State)
	for i := 0; i < 5; i++ {
		out, err := sess.LoadNextPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, out)
	}

	close(searcher.release)
	assert.Equal(t, OutcomeAppended, <-done)
	assert.Empty(t, searcher.started, "only one fetch issued")
	assert.Equal(t, 1, sess.Snapshot().Page)
}

func TestStaleResponseDiscarded(t *testing.T) {
	old := &blockingSearcher{
		started: make(chan catalog.Query, 1),
		release: make(chan struct{}),
		result:  makeProducts("old", 10),
	}
	fresh := &recordingSearcher{pages: map[string][]model.Product{
		"new/0": makeProducts("new", 3),
	}}

	var mu sync.Mutex
	var active catalog.Searcher = old
	searcher := &catalog.Mock{SearchFunc: func(ctx context.Context, q catalog.Query) ([]model.Product, error) {
		mu.Lock()
		s := active
		mu.Unlock()
		return s.Search(ctx, q)
	}}

	sess, clk := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	done := make(chan Outcome, 1)
	go func() {
		out, _ := sess.LoadNextPage(ctx)
		done <- out
	}()
	<-old.started

	// The query changes while the first fetch is outstanding.
	require.NoError(t, sess.SetSearchText("new"))
	clk.Advance(DefaultDebounce)

	mu.Lock()
	active = fresh
	mu.Unlock()

	// A fetch for the new generation is allowed even though the old one is
	// still in flight.
	out, err := sess.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)

	close(old.release)
	assert.Equal(t, OutcomeStale, <-done)

	snap := sess.Snapshot()
	assert.Equal(t, "new", snap.DebouncedText)
	require.Len(t, snap.Results, 3)
	for _, p := range snap.Results {
		assert.Contains(t, string(p.ID), "new")
	}
	assert.Equal(t, 1, snap.Page)
}

func TestDuplicateProductsAcrossPagesKeptOnce(t *testing.T) {
	page0 := makeProducts("a", 2)
	page1 := append(makeProducts("a", 1), makeProducts("b", 1)...)
	searcher := &recordingSearcher{pages: map[string][]model.Product{"/0": page0, "/1": page1}}
	sess, _ := newTestSession(t, searcher, Options{})
	ctx := context.Background()

	sess.LoadNextPage(ctx)
	sess.LoadNextPage(ctx)

	snap := sess.Snapshot()
	assert.Len(t, snap.Results, 3)
	assert.Equal(t, 2, snap.Page)
}

func TestCommitAndCancel(t *testing.T) {
	initial := []model.SelectionEntry{{ID: "seed", Title: "Seeded", Variants: []model.Variant{}}}
	clk := clock.NewFake(time.Now())
	sess := New(&catalog.Mock{}, initial, Options{Clock: clk})

	require.NoError(t, sess.SetSearchText("pending"))
	entries, err := sess.Commit()
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"seed"}, entryIDs(entries))
	assert.Equal(t, 0, clk.Pending(), "commit stops the debounce timer")
	assert.True(t, sess.Closed())

	_, err = sess.Commit()
	assert.True(t, errors.Is(err, model.ErrConflict))
	assert.True(t, errors.Is(sess.SetSearchText("x"), model.ErrConflict))
	_, err = sess.LoadNextPage(context.Background())
	assert.True(t, errors.Is(err, model.ErrConflict))

	other := New(&catalog.Mock{}, initial, Options{Clock: clk})
	other.Cancel()
	assert.Equal(t, StateClosed, other.Snapshot().State)
	assert.Empty(t, other.Working())
	other.Cancel() // idempotent
}

func TestWorkingCopyIsIsolated(t *testing.T) {
	initial := []model.SelectionEntry{{ID: "seed", Title: "Seeded", Variants: []model.Variant{}}}
	sess := New(&catalog.Mock{}, initial, Options{Clock: clock.NewFake(time.Now())})

	initial[0].Title = "changed"
	assert.Equal(t, "Seeded", sess.Working()[0].Title)
}

func TestIdleSince(t *testing.T) {
	sess, clk := newTestSession(t, &catalog.Mock{}, Options{})
	start := sess.IdleSince()

	clk.Advance(time.Minute)
	require.NoError(t, sess.SetSearchText("x"))

	assert.Equal(t, start.Add(time.Minute), sess.IdleSince())
}

func entryIDs(entries []model.SelectionEntry) []model.ID {
	out := make([]model.ID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
