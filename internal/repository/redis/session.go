package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

// SessionStore keeps conversation sessions in Redis as JSON values with a TTL
type SessionStore struct {
	client *Client
}

// NewSessionStore creates a new session store
func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(key domain.SessionKey) string {
	return sessionPrefix + key.String()
}

// Get retrieves a session. Reading does not extend its TTL.
func (s *SessionStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	data, err := s.client.rdb.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return decodeSession(data)
}

// Set stores a session and resets its TTL
func (s *SessionStore) Set(ctx context.Context, key domain.SessionKey, sess *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.rdb.Set(ctx, sessionKey(key), data, ttl).Err(); err != nil {
		return &domain.StoreError{Op: "set", Err: err}
	}
	return nil
}

// Create stores sess with SET NX, leaving an existing session untouched
func (s *SessionStore) Create(ctx context.Context, key domain.SessionKey, sess *domain.Session, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}
	created, err := s.client.rdb.SetNX(ctx, sessionKey(key), data, ttl).Result()
	if err != nil {
		return false, &domain.StoreError{Op: "create", Err: err}
	}
	return created, nil
}

// Delete removes a session. Deleting a missing key is not an error.
func (s *SessionStore) Delete(ctx context.Context, key domain.SessionKey) error {
	if err := s.client.rdb.Del(ctx, sessionKey(key)).Err(); err != nil {
		return &domain.StoreError{Op: "delete", Err: err}
	}
	return nil
}

// Ping checks that Redis is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return &domain.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Acquire flips an idle session to pending inside a WATCH/MULTI transaction.
// A concurrent write to the same key aborts the transaction and is reported as pending.
func (s *SessionStore) Acquire(ctx context.Context, key domain.SessionKey, ttl time.Duration) (*domain.Session, error) {
	k := sessionKey(key)
	var acquired *domain.Session

	err := s.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return &domain.StoreError{Op: "acquire", Err: err}
		}

		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		if sess.Pending {
			return domain.ErrSessionPending
		}

		sess.Pending = true
		updated, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, updated, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		acquired = sess
		return nil
	}, k)

	switch {
	case err == nil:
		return acquired, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, domain.ErrSessionPending
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionPending), domain.IsStoreUnavailable(err):
		return nil, err
	default:
		return nil, &domain.StoreError{Op: "acquire", Err: err}
	}
}

// FlushAll removes every stored session
func (s *SessionStore) FlushAll(ctx context.Context) (int64, error) {
	pattern := sessionPrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := s.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := s.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func decodeSession(data []byte) (*domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}
