package session

import (
	"context"
	"sync"
	"time"

	"astrobot-service/internal/domain/conversation"
	xerrors "astrobot-service/internal/pkg/errors"
)

type slot struct {
	userID string
	kind   conversation.FlowKind
}

// MemoryStore keeps sessions in process. State is lost on restart and is
// not shared between instances.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[slot]conversation.Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[slot]conversation.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string, kind conversation.FlowKind) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slot{userID, kind}
	sess, ok := s.sessions[key]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, key)
		return nil, xerrors.ErrNotFound
	}
	// callers get a copy; mutations land only through Save
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *conversation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.ExpiresAt.IsZero() && s.ttl > 0 {
		sess.ExpiresAt = now.Add(s.ttl)
	}
	sess.UpdatedAt = now
	s.sessions[slot{sess.UserID, sess.Kind}] = *sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string, kind conversation.FlowKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, slot{userID, kind})
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.sessions {
		if key.userID == userID {
			delete(s.sessions, key)
		}
	}
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
