// Package ledger is the authoritative record of escalated caller questions
// and the answers learned from resolving them.
//
// All mutations run under one lock and are followed by a synchronous save of
// the whole snapshot. A failed save is logged and reported as a
// *PersistenceError, but the in-memory change stands.
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultSaveTimeout = 2 * time.Second

// Ledger holds pending requests and learned answers.
type Ledger struct {
	mu       sync.RWMutex
	requests map[string]*Request
	learned  map[string]string
	counter  int

	store       Store
	clock       func() time.Time
	expiry      time.Duration
	saveTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithExpiry sets the age after which a pending request is swept to
// unresolved when pending requests are listed. Zero disables on-read sweeping.
func WithExpiry(d time.Duration) Option {
	return func(l *Ledger) { l.expiry = d }
}

// WithSaveTimeout bounds each snapshot save. Non-positive values keep the default.
func WithSaveTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.saveTimeout = d
		}
	}
}

// WithLogger sets the logger used for persistence warnings and sweeps.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Open restores the ledger from the last snapshot in store, or starts empty
// if none exists.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		requests:    make(map[string]*Request),
		learned:     make(map[string]string),
		counter:     1,
		store:       store,
		clock:       time.Now,
		saveTimeout: defaultSaveTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if snap != nil {
		l.restore(snap)
	}
	return l, nil
}

// restore installs snap, raising the counter past every id already in use.
func (l *Ledger) restore(snap *Snapshot) {
	next := snap.Counter
	for _, r := range snap.Pending {
		rc := r.clone()
		l.requests[rc.ID] = &rc
		if n := parseID(rc.ID); n >= next {
			next = n + 1
		}
	}
	for q, a := range snap.Learned {
		l.learned[Normalize(q)] = a
	}
	if next > l.counter {
		l.counter = next
	}
}

// CreateRequest records a new pending request for question.
// On a persistence failure the created request is still returned together
// with the error.
func (l *Ledger) CreateRequest(question, callerID string) (Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := formatID(l.counter)
	l.counter++

	req := &Request{
		ID:        id,
		Question:  question,
		CallerID:  callerID,
		Status:    StatusPending,
		CreatedAt: l.clock().UTC(),
	}
	l.requests[id] = req

	return req.clone(), l.saveLocked("create")
}

// PendingRequests returns every pending request, newest first. Requests
// older than the configured expiry are swept to unresolved beforehand.
func (l *Ledger) PendingRequests() []Request {
	if l.expiry > 0 {
		// A failed save is already logged; the sweep itself has been applied.
		_, _ = l.Sweep(l.clock(), l.expiry)
	}
	return l.Requests(StatusPending)
}

// Requests returns all requests with the given status, newest first.
// An empty status returns every request.
func (l *Ledger) Requests(status Status) []Request {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Request, 0, len(l.requests))
	for _, r := range l.requests {
		if status == "" || r.Status == status {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return parseID(out[i].ID) > parseID(out[j].ID)
	})
	return out
}

// Request returns the request with the given id.
func (l *Ledger) Request(id string) (Request, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.requests[id]
	if !ok {
		return Request{}, &NotFoundError{ID: id}
	}
	return r.clone(), nil
}

// ResolveRequest answers a pending request and learns the answer for its
// question. Unknown ids fail with *NotFoundError, requests that already
// left pending with *InvalidStateError; in both cases nothing changes.
func (l *Ledger) ResolveRequest(id, answer string) (Request, error) {
	if strings.TrimSpace(answer) == "" {
		return Request{}, ErrEmptyAnswer
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.requests[id]
	if !ok {
		return Request{}, &NotFoundError{ID: id}
	}
	if r.Status.Terminal() {
		return Request{}, &InvalidStateError{ID: id, Status: r.Status}
	}

	now := l.clock().UTC()
	r.Status = StatusResolved
	r.Answer = &answer
	r.ResolvedAt = &now
	l.learned[Normalize(r.Question)] = answer

	return r.clone(), l.saveLocked("resolve")
}

// LearnedAnswers returns a copy of the learned question/answer table.
func (l *Ledger) LearnedAnswers() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.learned))
	for q, a := range l.learned {
		out[q] = a
	}
	return out
}

// LookupAnswer returns the learned answer for question, ignoring case.
func (l *Ledger) LookupAnswer(question string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.learned[Normalize(question)]
	return a, ok
}

// ClearAll drops every request and learned answer. The id counter is kept
// so ids are never reused.
func (l *Ledger) ClearAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requests = make(map[string]*Request)
	l.learned = make(map[string]string)
	return l.saveLocked("clear")
}

// Sweep moves every pending request created at or before now-threshold to
// unresolved and returns the moved requests. Running it again with the same
// arguments is a no-op.
func (l *Ledger) Sweep(now time.Time, threshold time.Duration) ([]Request, error) {
	cutoff := now.Add(-threshold)

	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []Request
	for _, r := range l.requests {
		if r.Status != StatusPending || r.CreatedAt.After(cutoff) {
			continue
		}
		at := now.UTC()
		r.Status = StatusUnresolved
		r.ResolvedAt = &at
		expired = append(expired, r.clone())
		l.logger.Info("request expired", "request_id", r.ID, "question", r.Question, "age", now.Sub(r.CreatedAt).String())
	}
	if len(expired) == 0 {
		return nil, nil
	}
	sort.Slice(expired, func(i, j int) bool {
		return parseID(expired[i].ID) < parseID(expired[j].ID)
	})
	return expired, l.saveLocked("sweep")
}

// snapshotLocked builds the persisted form. Caller must hold l.mu.
func (l *Ledger) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Pending: make([]Request, 0, len(l.requests)),
		Learned: make(map[string]string, len(l.learned)),
		Counter: l.counter,
	}
	for _, r := range l.requests {
		snap.Pending = append(snap.Pending, r.clone())
	}
	sort.Slice(snap.Pending, func(i, j int) bool {
		return parseID(snap.Pending[i].ID) < parseID(snap.Pending[j].ID)
	})
	for q, a := range l.learned {
		snap.Learned[q] = a
	}
	return snap
}

// saveLocked persists the current state. Caller must hold l.mu.
func (l *Ledger) saveLocked(op string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.saveTimeout)
	defer cancel()

	if err := l.store.Save(ctx, l.snapshotLocked()); err != nil {
		l.logger.Warn("failed to save ledger snapshot", "op", op, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}
