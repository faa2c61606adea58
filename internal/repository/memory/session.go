package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultCleanupInterval is how often the janitor sweeps expired sessions
const DefaultCleanupInterval = time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// SessionStore is an in-process session store for single-replica deployments and tests.
// Values are kept serialized so callers never share state with the store.
type SessionStore struct {
	entries map[string]entry
	now     func() time.Time
	mu      sync.Mutex
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock creates an empty store reading time from now
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get retrieves a live session
func (s *SessionStore) Get(_ context.Context, key domain.SessionKey) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(key.String())
}

// Set stores a session and resets its TTL
func (s *SessionStore) Set(_ context.Context, key domain.SessionKey, sess *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store(key.String(), sess, ttl)
}

// Create stores sess only if no live session exists under key
func (s *SessionStore) Create(_ context.Context, key domain.SessionKey, sess *domain.Session, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if _, err := s.load(k); !errors.Is(err, domain.ErrSessionNotFound) {
		return false, err
	}
	if err := s.store(k, sess, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a session
func (s *SessionStore) Delete(_ context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key.String())
	return nil
}

// Ping always succeeds
func (s *SessionStore) Ping(context.Context) error {
	return nil
}

// Acquire flips an idle session to pending while holding the store lock
func (s *SessionStore) Acquire(_ context.Context, key domain.SessionKey, ttl time.Duration) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(key.String())
	if err != nil {
		return nil, err
	}
	if sess.Pending {
		return nil, domain.ErrSessionPending
	}

	sess.Pending = true
	if err := s.store(key.String(), sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// CleanupExpired removes expired sessions and returns how many were dropped
func (s *SessionStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// RunJanitor sweeps expired sessions every interval until ctx is done
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.CleanupExpired(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Cleaned up expired sessions")
			}
		}
	}
}

func (s *SessionStore) load(k string) (*domain.Session, error) {
	e, ok := s.entries[k]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, k)
		return nil, domain.ErrSessionNotFound
	}

	var sess domain.Session
	if err := json.Unmarshal(e.data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) store(k string, sess *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	s.entries[k] = entry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}
