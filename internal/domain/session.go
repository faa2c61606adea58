package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultSessionTTL is how long an untouched session survives in the store
const DefaultSessionTTL = 300 * time.Second

// DefaultHistoryLimit is the number of turns retained after trimming
const DefaultHistoryLimit = 6

// SessionKind tells direct conversations apart from channel conversations.
// Direct sessions are created on the first message; channel sessions need an explicit start.
type SessionKind int

const (
	SessionDirect SessionKind = iota
	SessionChannel
)

func (k SessionKind) String() string {
	switch k {
	case SessionDirect:
		return "user"
	case SessionChannel:
		return "channel"
	}
	return "unknown"
}

// AutoCreate reports whether an unknown session of this kind is created on first message
func (k SessionKind) AutoCreate() bool {
	return k == SessionDirect
}

// ParseSessionKind parses the key namespace ("user" or "channel")
func ParseSessionKind(s string) (SessionKind, error) {
	switch strings.ToLower(s) {
	case "user", "direct":
		return SessionDirect, nil
	case "channel":
		return SessionChannel, nil
	}
	return 0, fmt.Errorf("unknown session kind: %q", s)
}

// SessionKey identifies one conversation in the store
type SessionKey struct {
	Kind SessionKind
	ID   string
}

// NewSessionKey creates a session key
func NewSessionKey(kind SessionKind, id string) SessionKey {
	return SessionKey{Kind: kind, ID: id}
}

// String returns the namespaced store key, e.g. "user:U123" or "channel:C456"
func (k SessionKey) String() string {
	return k.Kind.String() + ":" + k.ID
}

// Session is the per-conversation state record
type Session struct {
	Messages []Turn `json:"messages"`
	Pending  bool   `json:"pending"`
}

// NewSession creates an idle session seeded with the given turns
func NewSession(initial ...Turn) *Session {
	msgs := make([]Turn, len(initial))
	copy(msgs, initial)
	return &Session{Messages: msgs}
}

// Append adds a turn at the end of the history
func (s *Session) Append(turn Turn) *Session {
	s.Messages = append(s.Messages, turn)
	return s
}

// Trim drops the oldest turns until at most limit remain.
// A non-positive limit leaves the history untouched.
func (s *Session) Trim(limit int) *Session {
	if limit <= 0 || len(s.Messages) <= limit {
		return s
	}
	kept := make([]Turn, limit)
	copy(kept, s.Messages[len(s.Messages)-limit:])
	s.Messages = kept
	return s
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := &Session{Pending: s.Pending, Messages: make([]Turn, len(s.Messages))}
	copy(c.Messages, s.Messages)
	return c
}

// SessionStore is the expiring key-value store that owns session records.
// Get returns ErrSessionNotFound for absent or expired keys.
// Set refreshes the TTL on every write; reads never extend it.
// Create writes only when the key is absent or expired and reports whether it did.
type SessionStore interface {
	Get(ctx context.Context, key SessionKey) (*Session, error)
	Set(ctx context.Context, key SessionKey, session *Session, ttl time.Duration) error
	Create(ctx context.Context, key SessionKey, session *Session, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key SessionKey) error
	Ping(ctx context.Context) error
}

// SessionAcquirer claims an idle session for one processing cycle by flipping Pending to true.
// It returns ErrSessionNotFound when the key is absent and ErrSessionPending when another
// cycle already holds it.
type SessionAcquirer interface {
	Acquire(ctx context.Context, key SessionKey, ttl time.Duration) (*Session, error)
}
