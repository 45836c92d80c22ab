package studio

import (
	"context"
	"sync"
	"time"
)

// Store persists session state. Update runs fn atomically against the stored
// state; when fn returns an error nothing is written.
type Store interface {
	Create(ctx context.Context, st State) error
	Get(ctx context.Context, id string) (State, error)
	Update(ctx context.Context, id string, fn func(*State) error) (State, error)
	Delete(ctx context.Context, id string) error
}

type MemoryOptions struct {
	TTL         time.Duration
	MaxSessions int
}

// MemoryStore keeps sessions in process. Idle sessions expire after TTL and
// the least recently active session is evicted once MaxSessions is reached.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

type memoryEntry struct {
	state        State
	lastActivity time.Time
}

func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		ttl:         ttl,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	if _, ok := s.sessions[st.ID]; ok {
		return ErrExists
	}
	st.UpdatedAt = now
	s.sessions[st.ID] = &memoryEntry{state: st.Clone(), lastActivity: now}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.getLocked(id)
	if err != nil {
		return State{}, err
	}
	return e.state.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*State) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.getLocked(id)
	if err != nil {
		return State{}, err
	}

	next := e.state.Clone()
	if fn != nil {
		if err := fn(&next); err != nil {
			return e.state.Clone(), err
		}
	}
	next.ID = id
	next.UpdatedAt = s.now()
	e.state = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getLocked(id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) getLocked(id string) (*memoryEntry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if now.Sub(e.lastActivity) > s.ttl && !e.state.Busy() {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	e.lastActivity = now
	return e, nil
}

// evictLocked drops expired sessions and makes room for one more. Sessions
// with a call in flight are never evicted.
func (s *MemoryStore) evictLocked(now time.Time) {
	for id, e := range s.sessions {
		if now.Sub(e.lastActivity) > s.ttl && !e.state.Busy() {
			delete(s.sessions, id)
		}
	}

	for len(s.sessions) >= s.maxSessions {
		oldestID := ""
		var oldest time.Time
		for id, e := range s.sessions {
			if e.state.Busy() {
				continue
			}
			if oldestID == "" || e.lastActivity.Before(oldest) {
				oldestID = id
				oldest = e.lastActivity
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.sessions, oldestID)
	}
}
