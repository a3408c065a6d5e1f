// Package session provides the hybrid session store used by the conversation engine.
//
// The in-process cache is authoritative for live conversations. Every durable write is
// best-effort: a failure is logged and the conversation continues from the cache.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// DefaultStoreTimeout bounds each durable store call.
const DefaultStoreTimeout = 3 * time.Second

// Store is the session storage contract the engine depends on.
type Store interface {
	Get(ctx context.Context, phone string) (*models.Session, error)
	Create(ctx context.Context, phone string, language lang.Code) (*models.Session, error)
	Update(ctx context.Context, phone string, step models.Step, data models.SessionData) (*models.Session, error)
}

// Opts configures a HybridStore.
type Opts struct {
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Option configures a HybridStore.
type Option func(*Opts)

// WithStoreTimeout sets the per-call durable store timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.StoreTimeout = d
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// HybridStore caches sessions in memory and mirrors them to a durable store.
type HybridStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	dirty    map[string]struct{} // last durable write failed; the cache is the only copy
	durable  store.Store
	timeout  time.Duration
	now      func() time.Time
}

var _ Store = (*HybridStore)(nil)

// NewHybridStore creates a session store over durable. A nil durable store runs cache-only.
func NewHybridStore(durable store.Store, opts ...Option) *HybridStore {
	cfg := Opts{StoreTimeout: DefaultStoreTimeout, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HybridStore{
		sessions: make(map[string]models.Session),
		dirty:    make(map[string]struct{}),
		durable:  durable,
		timeout:  cfg.StoreTimeout,
		now:      cfg.Now,
	}
}

// Get returns a copy of the session for phone, or nil if none exists.
// On a cache miss the durable store is consulted and a hit is written back to the cache.
func (h *HybridStore) Get(ctx context.Context, phone string) (*models.Session, error) {
	h.mu.RLock()
	cached, ok := h.sessions[phone]
	h.mu.RUnlock()
	if ok {
		out := cached.Clone()
		return &out, nil
	}
	if h.durable == nil {
		return nil, nil
	}

	dctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	sess, err := h.durable.GetSession(dctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		slog.Warn("HybridStore.Get: durable lookup failed, treating as miss", "phone", phone, "error", err)
		return nil, nil
	}
	if !sess.Step.IsValid() {
		slog.Warn("HybridStore.Get: durable session has unknown step, ignoring", "phone", phone, "step", sess.Step)
		return nil, nil
	}

	h.mu.Lock()
	// A concurrent Create/Update wins over the stale durable copy.
	if current, ok := h.sessions[phone]; ok {
		h.mu.Unlock()
		out := current.Clone()
		return &out, nil
	}
	h.sessions[phone] = sess.Clone()
	h.mu.Unlock()
	slog.Debug("HybridStore.Get: restored session from durable store", "phone", phone, "step", sess.Step)
	return sess, nil
}

// Create initializes a fresh session at GREETING, replacing any existing one.
func (h *HybridStore) Create(ctx context.Context, phone string, language lang.Code) (*models.Session, error) {
	now := h.now()
	sess := models.Session{
		PhoneNumber: phone,
		Step:        models.StepGreeting,
		Data:        models.NewSessionData(language),
		CreatedAt:   now,
		LastActive:  now,
	}
	h.put(sess)
	h.persist(ctx, sess)
	slog.Debug("HybridStore.Create: session created", "phone", phone, "language", sess.Data.Language)
	out := sess.Clone()
	return &out, nil
}

// Update sets the step and data for phone. A missing session is created.
func (h *HybridStore) Update(ctx context.Context, phone string, step models.Step, data models.SessionData) (*models.Session, error) {
	if !step.IsValid() {
		return nil, errors.New("session: invalid step " + string(step))
	}
	now := h.now()
	h.mu.Lock()
	sess, ok := h.sessions[phone]
	if !ok {
		sess = models.Session{PhoneNumber: phone, CreatedAt: now}
	}
	sess.Step = step
	sess.Data = data.Clone()
	sess.LastActive = now
	h.sessions[phone] = sess
	h.mu.Unlock()

	h.persist(ctx, sess)
	out := sess.Clone()
	return &out, nil
}

// Snapshot returns the cached session without touching the durable store.
func (h *HybridStore) Snapshot(phone string) (models.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[phone]
	if !ok {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// Len returns the number of cached sessions.
func (h *HybridStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *HybridStore) put(sess models.Session) {
	h.mu.Lock()
	h.sessions[sess.PhoneNumber] = sess.Clone()
	h.mu.Unlock()
}

// persist writes sess to the durable store. Failures are logged, never returned.
func (h *HybridStore) persist(ctx context.Context, sess models.Session) {
	if h.durable == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()
	err := h.durable.SaveSession(dctx, sess)
	h.mu.Lock()
	if err != nil {
		h.dirty[sess.PhoneNumber] = struct{}{}
	} else {
		delete(h.dirty, sess.PhoneNumber)
	}
	h.mu.Unlock()
	if err != nil {
		slog.Warn("HybridStore.persist: durable write failed, continuing from cache", "phone", sess.PhoneNumber, "step", sess.Step, "error", err)
	}
}

// EvictIdle drops cached sessions inactive for longer than idle and returns how many were
// dropped. Evicted sessions are reloaded from the durable store on their next Get. Sessions
// whose durable write failed are kept, and a cache-only store never evicts.
func (h *HybridStore) EvictIdle(idle time.Duration) int {
	if h.durable == nil || idle <= 0 {
		return 0
	}
	cutoff := h.now().Add(-idle)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for phone, sess := range h.sessions {
		if _, dirty := h.dirty[phone]; dirty {
			continue
		}
		if sess.LastActive.Before(cutoff) {
			delete(h.sessions, phone)
			n++
		}
	}
	return n
}
