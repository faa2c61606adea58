package usage

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// Sink persists finished usage records
type Sink interface {
	Append(ctx context.Context, record domain.UsageRecord) error
}

// Recorder opens usage scopes around message processing
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder creates a recorder writing to sink
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Begin starts timing a unit of work for actorID. Call End exactly once, typically deferred.
func (r *Recorder) Begin(actorID string) *Scope {
	return &Scope{
		recorder: r,
		actorID:  actorID,
		start:    r.now(),
	}
}

// Scope accumulates the tokens spent by one unit of work.
// Tokens stay 0 unless the work sets them.
type Scope struct {
	recorder *Recorder
	actorID  string
	start    time.Time

	mu     sync.Mutex
	tokens int

	once   sync.Once
	record domain.UsageRecord
}

// AddTokens adds n to the scope's token count
func (s *Scope) AddTokens(n int) {
	s.mu.Lock()
	s.tokens += n
	s.mu.Unlock()
}

// SetTokens replaces the scope's token count
func (s *Scope) SetTokens(n int) {
	s.mu.Lock()
	s.tokens = n
	s.mu.Unlock()
}

// Tokens returns the current token count
func (s *Scope) Tokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// End writes the usage record. Only the first call writes; later calls return the same record.
func (s *Scope) End() domain.UsageRecord {
	s.once.Do(func() {
		end := s.recorder.now()
		s.record = domain.UsageRecord{
			ID:             uuid.New(),
			ActorID:        s.actorID,
			Tokens:         s.Tokens(),
			ElapsedSeconds: end.Sub(s.start).Seconds(),
			RecordedAt:     end,
		}

		log.Info().
			Str("actor_id", s.record.ActorID).
			Int("tokens", s.record.Tokens).
			Float64("elapsed_seconds", s.record.ElapsedSeconds).
			Msg("Usage recorded")

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.recorder.sink.Append(ctx, s.record); err != nil {
			log.Error().Err(err).Str("actor_id", s.record.ActorID).Msg("Failed to write usage record")
		}
	})
	return s.record
}
