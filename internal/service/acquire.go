package service

import (
	"context"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
)

// UnguardedAcquirer claims a session with a plain read followed by a separate write.
// Two events read between each other's get and set both win; use the store's own
// Acquire when exclusion matters.
type UnguardedAcquirer struct {
	store domain.SessionStore
}

// NewUnguardedAcquirer creates an acquirer over store
func NewUnguardedAcquirer(store domain.SessionStore) *UnguardedAcquirer {
	return &UnguardedAcquirer{store: store}
}

// Acquire reads the session, rejects it if pending, then writes it back pending
func (a *UnguardedAcquirer) Acquire(ctx context.Context, key domain.SessionKey, ttl time.Duration) (*domain.Session, error) {
	sess, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess.Pending {
		return nil, domain.ErrSessionPending
	}

	sess.Pending = true
	if err := a.store.Set(ctx, key, sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}
