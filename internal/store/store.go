// Package store keeps the live widgets and picker sessions of the service in
// memory. Widgets own a selection holder; sessions are opened against a widget
// and write back to its holder on commit.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"product-picker/internal/catalog"
	"product-picker/internal/clock"
	"product-picker/internal/model"
	"product-picker/internal/picker"
	"product-picker/internal/reconcile"
	"product-picker/internal/selection"
)

// DefaultSessionTTL is how long a picker session may sit unused before the
// janitor cancels it.
const DefaultSessionTTL = 30 * time.Minute

// Config configures a Store.
type Config struct {
	Catalog            catalog.Searcher
	Debounce           time.Duration
	PageSize           int
	EmptyEntryPolicy   model.EmptyEntryPolicy
	PropagateDiscounts bool
	SessionTTL         time.Duration
	Clock              clock.Clock
	Logger             *slog.Logger
}

// Stats counts live objects.
type Stats struct {
	Widgets  int `json:"widgets"`
	Sessions int `json:"sessions"`
}

type openSession struct {
	widgetID string
	session  *picker.Session
}

// Store is safe for concurrent use.
type Store struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	widgets  map[string]*selection.Holder
	sessions map[string]openSession
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		widgets:  make(map[string]*selection.Holder),
		sessions: make(map[string]openSession),
	}
}

// CreateWidget registers a new widget seeded with initial entries.
func (s *Store) CreateWidget(initial []model.SelectionEntry) (string, *selection.Holder, error) {
	h, err := selection.New(initial, selection.Options{
		EmptyEntryPolicy:   s.cfg.EmptyEntryPolicy,
		PropagateDiscounts: s.cfg.PropagateDiscounts,
		Logger:             s.logger,
	})
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	logger := s.logger.With(slog.String("widget_id", id))
	h.OnChange(func(c selection.Change) {
		logger.Info("selection changed",
			slog.String("kind", string(c.Kind)),
			slog.Int("entries", len(c.Entries)),
		)
	})

	s.mu.Lock()
	s.widgets[id] = h
	s.mu.Unlock()

	logger.Debug("widget created", slog.Int("entries", len(initial)))
	return id, h, nil
}

// Widget returns the holder of a widget.
func (s *Store) Widget(id string) (*selection.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.widgets[id]
	if !ok {
		return nil, model.NewNotFoundError("widget")
	}
	return h, nil
}

// DeleteWidget removes a widget and cancels the sessions opened against it.
func (s *Store) DeleteWidget(id string) error {
	s.mu.Lock()
	if _, ok := s.widgets[id]; !ok {
		s.mu.Unlock()
		return model.NewNotFoundError("widget")
	}
	delete(s.widgets, id)
	var orphans []*picker.Session
	for sid, rec := range s.sessions {
		if rec.widgetID == id {
			orphans = append(orphans, rec.session)
			delete(s.sessions, sid)
		}
	}
	s.mu.Unlock()

	for _, sess := range orphans {
		sess.Cancel()
	}
	return nil
}

// OpenSession starts a picker session whose working selection is a copy of
// the widget's current entries.
func (s *Store) OpenSession(widgetID string) (string, *picker.Session, error) {
	h, err := s.Widget(widgetID)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	sess := picker.New(s.cfg.Catalog, h.Entries(), picker.Options{
		Debounce:         s.cfg.Debounce,
		PageSize:         s.cfg.PageSize,
		EmptyEntryPolicy: s.cfg.EmptyEntryPolicy,
		Clock:            s.clock,
		Logger:           s.logger.With(slog.String("session_id", id)),
	})

	s.mu.Lock()
	if _, ok := s.widgets[widgetID]; !ok {
		s.mu.Unlock()
		return "", nil, model.NewNotFoundError("widget")
	}
	s.sessions[id] = openSession{widgetID: widgetID, session: sess}
	s.mu.Unlock()

	s.logger.Debug("picker session opened",
		slog.String("session_id", id),
		slog.String("widget_id", widgetID),
	)
	return id, sess, nil
}

// Session returns an open picker session.
func (s *Store) Session(id string) (*picker.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, model.NewNotFoundError("picker session")
	}
	return rec.session, nil
}

// CommitResult is the outcome of CommitSession.
type CommitResult struct {
	WidgetID string
	Holder   *selection.Holder
	Changes  reconcile.SelectionDiff
}

// CommitSession closes the session and replaces the widget's list with the
// session's working selection.
func (s *Store) CommitSession(id string) (CommitResult, error) {
	rec, err := s.take(id)
	if err != nil {
		return CommitResult{}, err
	}
	entries, err := rec.session.Commit()
	if err != nil {
		return CommitResult{}, err
	}

	h, err := s.Widget(rec.widgetID)
	if err != nil {
		return CommitResult{}, err
	}
	changes := reconcile.DiffSelections(h.Entries(), entries)
	if err := h.ReplaceAll(entries); err != nil {
		return CommitResult{}, err
	}

	s.logger.Info("picker session committed",
		slog.String("session_id", id),
		slog.String("widget_id", rec.widgetID),
		slog.Int("added_products", len(changes.AddedProducts)),
		slog.Int("removed_products", len(changes.RemovedProducts)),
		slog.Int("added_variants", len(changes.AddedVariants)),
		slog.Int("removed_variants", len(changes.RemovedVariants)),
		slog.Bool("reordered", changes.Reordered),
	)
	return CommitResult{WidgetID: rec.widgetID, Holder: h, Changes: changes}, nil
}

// CancelSession closes the session without touching the widget.
func (s *Store) CancelSession(id string) error {
	rec, err := s.take(id)
	if err != nil {
		return err
	}
	rec.session.Cancel()
	return nil
}

func (s *Store) take(id string) (openSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return openSession{}, model.NewNotFoundError("picker session")
	}
	delete(s.sessions, id)
	return rec, nil
}

// Sweep cancels sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []*picker.Session
	for id, rec := range s.sessions {
		if now.Sub(rec.session.IdleSince()) > s.cfg.SessionTTL {
			expired = append(expired, rec.session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Cancel()
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle picker sessions", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.SessionTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.clock.Now())
		}
	}
}

// Stats returns the number of live widgets and sessions.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Widgets: len(s.widgets), Sessions: len(s.sessions)}
}
