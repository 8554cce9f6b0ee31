// Package picker implements the state behind an open product picker dialog:
// debounced search, incremental pagination of results, and a working copy of
// the selection that is edited until it is committed or cancelled.
//
// Each debounced query starts a new generation. A fetch remembers the
// generation it was issued for, and its result is discarded if the
// generation moved on while it was in flight.
//
//	Idle ──SetSearchText──▶ Debouncing ──timer──▶ Idle (generation+1)
//	Idle ──LoadNextPage──▶ Fetching ──ok──▶ Idle
//	                                 └─err─▶ Error (retryable)
package picker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"product-picker/internal/catalog"
	"product-picker/internal/clock"
	"product-picker/internal/model"
)

// DefaultDebounce is the quiet period after the last keystroke before a
// search is committed.
const DefaultDebounce = 500 * time.Millisecond

// State is the coarse state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateFetching   State = "fetching"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// Outcome reports what a LoadNextPage call did.
type Outcome string

const (
	// OutcomeAppended means a non-empty page was added to the results.
	OutcomeAppended Outcome = "appended"

	// OutcomeExhausted means an empty page ended the results for the query.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeSkipped means nothing was fetched: no more pages, or a fetch
	// for the current query is already in flight.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeStale means the fetch completed for a superseded query and its
	// result was dropped.
	OutcomeStale Outcome = "stale"

	// OutcomeFailed means the fetch failed; state is unchanged and the call
	// may be retried.
	OutcomeFailed Outcome = "failed"
)

// Options configures a Session.
type Options struct {
	Debounce         time.Duration
	PageSize         int
	EmptyEntryPolicy model.EmptyEntryPolicy
	Clock            clock.Clock
	Logger           *slog.Logger
}

// Session is one open picker dialog. It is safe for concurrent use; the
// lock is never held while fetching.
type Session struct {
	mu sync.Mutex

	searcher catalog.Searcher
	debounce time.Duration
	pageSize int
	policy   model.EmptyEntryPolicy
	clock    clock.Clock
	logger   *slog.Logger

	searchText    string
	debouncedText string
	page          int
	hasMore       bool
	results       []model.Product
	resultIndex   map[model.ID]int

	generation  uint64
	inFlight    bool
	inFlightGen uint64

	pending     clock.Timer
	pendingText string
	pendingSeq  uint64

	lastErr error
	closed  bool
	touched time.Time

	working []model.SelectionEntry
}

// New opens a session whose working selection starts as a copy of initial.
// The first LoadNextPage fetches page 0 of the unfiltered catalog.
func New(searcher catalog.Searcher, initial []model.SelectionEntry, opts Options) *Session {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = catalog.DefaultPageSize
	}
	policy := opts.EmptyEntryPolicy
	if policy == "" {
		policy = model.DropEmptyEntry
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		searcher:    searcher,
		debounce:    debounce,
		pageSize:    pageSize,
		policy:      policy,
		clock:       clk,
		logger:      logger,
		hasMore:     true,
		resultIndex: make(map[model.ID]int),
		touched:     clk.Now(),
		working:     model.CloneEntries(initial),
	}
}

// SetSearchText records raw input and (re)starts the debounce timer. Only
// the latest call within the window takes effect.
func (s *Session) SetSearchText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.NewSessionClosedError()
	}
	s.touch()

	s.searchText = text
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pendingSeq++
	seq := s.pendingSeq
	s.pendingText = text
	s.pending = s.clock.AfterFunc(s.debounce, func() { s.fireDebounce(seq) })
	return nil
}

// Flush commits a pending debounce immediately. It reports whether one was
// pending.
func (s *Session) Flush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending == nil {
		return false
	}
	s.pending.Stop()
	s.commitSearchLocked()
	return true
}

// fireDebounce runs on the timer. seq guards against a timer whose Stop lost
// the race with its own expiry.
func (s *Session) fireDebounce(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending == nil || seq != s.pendingSeq {
		return
	}
	s.commitSearchLocked()
}

func (s *Session) commitSearchLocked() {
	s.debouncedText = s.pendingText
	s.pending = nil
	s.page = 0
	s.results = nil
	s.resultIndex = make(map[model.ID]int)
	s.hasMore = true
	s.lastErr = nil
	s.generation++

	s.logger.Debug("search committed",
		slog.String("search", s.debouncedText),
		slog.Uint64("generation", s.generation),
	)
}

// LoadNextPage fetches the next page for the current debounced query.
//
// It is a no-op when the query has no more pages or a fetch for it is
// already in flight. A failed fetch returns the error and leaves results,
// page, and has-more untouched so the caller can retry.
func (s *Session) LoadNextPage(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OutcomeSkipped, model.NewSessionClosedError()
	}
	s.touch()
	if !s.hasMore || (s.inFlight && s.inFlightGen == s.generation) {
		s.mu.Unlock()
		return OutcomeSkipped, nil
	}
	gen := s.generation
	q := catalog.Query{Page: s.page, Limit: s.pageSize, Text: s.debouncedText}
	s.inFlight = true
	s.inFlightGen = gen
	s.mu.Unlock()

	products, err := s.searcher.Search(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlightGen == gen {
		s.inFlight = false
	}

	if s.closed || gen != s.generation {
		s.logger.Debug("discarding stale page",
			slog.Int("page", q.Page),
			slog.String("search", q.Text),
			slog.Uint64("generation", gen),
			slog.Uint64("current_generation", s.generation),
		)
		return OutcomeStale, nil
	}

	if err != nil {
		s.lastErr = err
		s.logger.Warn("failed to fetch products",
			slog.Int("page", q.Page),
			slog.String("search", q.Text),
			slog.String("error", err.Error()),
		)
		return OutcomeFailed, err
	}
	s.lastErr = nil

	if len(products) == 0 {
		s.hasMore = false
		return OutcomeExhausted, nil
	}

	for _, p := range products {
		if _, dup := s.resultIndex[p.ID]; dup {
			continue
		}
		s.resultIndex[p.ID] = len(s.results)
		s.results = append(s.results, p)
	}
	s.page++
	return OutcomeAppended, nil
}

// Commit closes the session and returns the working selection verbatim.
// The caller propagates it to the selection holder.
func (s *Session) Commit() ([]model.SelectionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, model.NewSessionClosedError()
	}
	s.closeLocked()
	return model.CloneEntries(s.working), nil
}

// Cancel closes the session and discards the working selection.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
	s.working = nil
}

// Closed reports whether the session was committed or cancelled.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IdleSince returns the time of the last operation on the session.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) closeLocked() {
	s.closed = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *Session) touch() {
	s.touched = s.clock.Now()
}

func (s *Session) stateLocked() State {
	switch {
	case s.closed:
		return StateClosed
	case s.pending != nil:
		return StateDebouncing
	case s.inFlight && s.inFlightGen == s.generation:
		return StateFetching
	case s.lastErr != nil:
		return StateError
	default:
		return StateIdle
	}
}
