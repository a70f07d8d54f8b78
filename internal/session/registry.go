package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Registry holds the live sessions for this terminal process. Sessions are
// transient by design: nothing is persisted and idle sessions are evicted
// after the configured TTL.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	taxBps   int
	ttl      time.Duration
	now      func() time.Time
	onCount  func(n int)
}

// NewRegistry constructs a registry creating sessions at the given tax rate.
func NewRegistry(taxBps int, ttl time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		taxBps:   taxBps,
		ttl:      ttl,
		now:      now,
	}
}

// WithCountHook registers a callback invoked with the live session count
// after every membership change, TTL evictions included.
func (r *Registry) WithCountHook(fn func(n int)) *Registry {
	r.mu.Lock()
	r.onCount = fn
	r.mu.Unlock()
	return r
}

// Open creates and registers a new session.
func (r *Registry) Open() *Session {
	s := New(r.taxBps, r.now)
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	hook := r.onCount
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return s
}

// Get returns the session for the given ID, evicting it if expired.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if r.now().Sub(s.TouchedAt()) > r.ttl {
		r.Close(id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Close discards a session. Closing an unknown ID is a no-op and does not
// fire the count hook.
func (r *Registry) Close(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	hook := r.onCount
	r.mu.Unlock()
	if ok && hook != nil {
		hook(n)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts all expired sessions once.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	live := make(map[uuid.UUID]*Session, len(r.sessions))
	for id, s := range r.sessions {
		live[id] = s
	}
	r.mu.Unlock()

	evicted := 0
	for id, s := range live {
		if s.TouchedAt().Before(cutoff) {
			r.Close(id)
			evicted++
		}
	}
	return evicted
}

// Run sweeps periodically until the context is canceled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
