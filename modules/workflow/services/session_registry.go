package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/pkg/logging"
)

// Session is one console user's editor: an assignment controller and the
// scope search feeding it.
type Session struct {
	ID         uuid.UUID
	Controller *AssignmentController
	Search     *ScopeSearch
	CreatedAt  time.Time

	lastSeen time.Time
}

func (s *Session) close() {
	s.Search.Close()
	s.Controller.Close()
}

// SessionFactory builds the parts of a new session.
type SessionFactory func(id uuid.UUID, log *logrus.Entry) (*AssignmentController, *ScopeSearch)

type SessionRegistryConfig struct {
	Factory     SessionFactory
	IdleTTL     time.Duration
	MaxSessions int
	Logger      *logrus.Entry
}

// SessionRegistry keeps editor sessions by id and evicts the ones left idle
// longer than IdleTTL.
type SessionRegistry struct {
	factory SessionFactory
	idleTTL time.Duration
	max     int
	log     *logrus.Entry

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewSessionRegistry(cfg SessionRegistryConfig) *SessionRegistry {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &SessionRegistry{
		factory:  cfg.Factory,
		idleTTL:  cfg.IdleTTL,
		max:      cfg.MaxSessions,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (r *SessionRegistry) Open() (*Session, error) {
	evicted := r.evictIdle()
	defer closeAll(evicted)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, ErrTooManySessions
	}
	id := uuid.New()
	log := r.log.WithField("session_id", id.String())
	controller, search := r.factory(id, log)
	t := now()
	s := &Session{
		ID:         id,
		Controller: controller,
		Search:     search,
		CreatedAt:  t,
		lastSeen:   t,
	}
	r.sessions[id] = s
	getMetrics().sessionsOpen.Inc()
	log.Info("editor session opened")
	return s, nil
}

// Get returns the session and marks it as used.
func (r *SessionRegistry) Get(id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = now()
	return s, nil
}

func (r *SessionRegistry) Close(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		getMetrics().sessionsOpen.Dec()
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	r.log.WithField("session_id", id.String()).Info("editor session closed")
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (r *SessionRegistry) Sweep() int {
	evicted := r.evictIdle()
	closeAll(evicted)
	return len(evicted)
}

func (r *SessionRegistry) evictIdle() []*Session {
	if r.idleTTL <= 0 {
		return nil
	}
	cutoff := now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			if s.Controller.IsDirty() {
				r.log.WithField("session_id", id.String()).Warn("evicting idle session with unsaved changes")
			}
			delete(r.sessions, id)
			evicted = append(evicted, s)
			getMetrics().sessionsOpen.Dec()
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done, then closes every session.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.WithField("evicted", n).Info("evicted idle editor sessions")
			}
		}
	}
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
		getMetrics().sessionsOpen.Dec()
	}
	r.mu.Unlock()
	closeAll(all)
}

func closeAll(sessions []*Session) {
	for _, s := range sessions {
		s.close()
	}
}
