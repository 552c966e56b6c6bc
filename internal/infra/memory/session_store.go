package memory

import (
	"sync"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Lookups share a read lock; each session serializes its own commands.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	generate func() (string, error)
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithGenerator(app.GenerateCode)
}

// NewSessionStoreWithGenerator lets tests force code collisions.
func NewSessionStoreWithGenerator(generate func() (string, error)) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
		generate: generate,
	}
}

func (s *SessionStore) Create(build func(code string) *app.Session) (*app.Session, error) {
	return s.CreateIf(build, nil)
}

// CodeLease reserves codes outside this process so that several stores never
// hand out the same code.
type CodeLease interface {
	// Reserve returns false when another owner already holds code.
	Reserve(code string) (bool, error)
	Release(code string)
}

// CreateIf is Create with an extra reservation step. The lease is taken
// without holding the store lock; a refused lease counts as a collision, and
// a lease won for a code that got taken locally meanwhile is released.
func (s *SessionStore) CreateIf(build func(code string) *app.Session, lease CodeLease) (*app.Session, error) {
	for attempt := 0; attempt < app.MaxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, err
		}
		if s.taken(code) {
			continue
		}
		if lease != nil {
			ok, err := lease.Reserve(code)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		session := build(code)
		s.mu.Lock()
		if _, taken := s.sessions[code]; taken {
			s.mu.Unlock()
			if lease != nil {
				lease.Release(code)
			}
			continue
		}
		s.sessions[code] = session
		s.mu.Unlock()
		return session, nil
	}
	return nil, domain.ErrCodeSpaceExhausted
}

func (s *SessionStore) taken(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[code]
	return ok
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
