package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store keeps sessions by id. Update is atomic per session: fn sees the
// latest state and its changes are written only if it returns nil.
// Get and Update treat an absent or expired id as a fresh idle session.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

type entry struct {
	sess    *Session
	expires time.Time
}

type memoryStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*entry

	stop chan struct{}
	once sync.Once
}

// NewMemoryStore keeps sessions in process memory. Expired sessions are
// dropped on access and by a background sweep every ttl/2.
func NewMemoryStore(ttl time.Duration) Store {
	s := &memoryStore{
		ttl:      ttl,
		sessions: make(map[string]*entry),
		stop:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id).Clone(), nil
}

func (s *memoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.load(id).Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.sessions[id] = &entry{sess: next, expires: time.Now().Add(s.ttl)}
	return next.Clone(), nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *memoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// load must be called with mu held.
func (s *memoryStore) load(id string) *Session {
	e, ok := s.sessions[id]
	if !ok {
		return New(id)
	}
	if time.Now().After(e.expires) {
		delete(s.sessions, id)
		return New(id)
	}
	return e.sess
}

func (s *memoryStore) sweep() {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			removed := 0
			for id, e := range s.sessions {
				if now.After(e.expires) {
					delete(s.sessions, id)
					removed++
				}
			}
			s.mu.Unlock()
			if removed > 0 {
				slog.Debug("expired sessions removed", "count", removed)
			}
		}
	}
}
