package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const releaseTimeout = 10 * time.Second

// ProviderResolver looks up a completion provider by name; "" selects the default
type ProviderResolver interface {
	GetProvider(name string) (llm.Provider, error)
}

// ConversationConfig holds the conversation policy
type ConversationConfig struct {
	Provider      string
	Model         string
	SystemPrompt  string
	HistoryLimit  int
	SessionTTL    time.Duration
	StreamTimeout time.Duration
	MaxTokens     int
	Temperature   float64
	Greeting      string
	Waiting       string
	Failure       string
}

// ConversationService routes inbound chat messages through the session state machine:
// no session, idle, pending.
type ConversationService struct {
	store     domain.SessionStore
	acquirer  domain.SessionAcquirer
	providers ProviderResolver
	streamer  *Streamer
	messenger Messenger
	recorder  *usage.Recorder
	cfg       ConversationConfig
}

// NewConversationService creates a new conversation service
func NewConversationService(
	store domain.SessionStore,
	acquirer domain.SessionAcquirer,
	providers ProviderResolver,
	streamer *Streamer,
	messenger Messenger,
	recorder *usage.Recorder,
	cfg ConversationConfig,
) *ConversationService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = domain.DefaultHistoryLimit
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = domain.DefaultSessionTTL
	}
	return &ConversationService{
		store:     store,
		acquirer:  acquirer,
		providers: providers,
		streamer:  streamer,
		messenger: messenger,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// HandleMessage processes one inbound message. Messages on unsupported surfaces and
// channel messages without a started session are ignored.
func (s *ConversationService) HandleMessage(ctx context.Context, event domain.InboundEvent) error {
	key, ok := event.SessionKey()
	if !ok {
		return nil
	}

	logger := log.With().
		Str("request_id", uuid.New().String()).
		Str("actor_id", event.ActorID).
		Str("session_key", key.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	sess, err := s.acquire(ctx, key)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		logger.Debug().Msg("No session, ignoring message")
		return nil
	case errors.Is(err, domain.ErrSessionPending):
		logger.Info().Msg("Session pending, message dropped")
		if _, err := s.messenger.PostMessage(ctx, event.ConversationID, s.cfg.Waiting); err != nil {
			return &domain.PlatformError{Op: "post_waiting", Err: err}
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to acquire session: %w", err)
	}

	scope := s.recorder.Begin(event.ActorID)
	defer scope.End()

	// Failed turns are not kept; the history goes back to what it was before the message.
	final := sess.Clone()
	defer s.release(ctx, key, final)

	sess.Append(domain.NewTurn(event.Text, domain.RoleUser)).Trim(s.cfg.HistoryLimit)

	result, err := s.reply(ctx, sess, event.ConversationID)
	scope.SetTokens(result.Tokens())
	if err != nil {
		logger.Error().Err(err).Int("fragments", result.Fragments).Msg("Failed to answer message")
		if !result.NoticeShown && !domain.IsPlatformError(err) {
			if _, postErr := s.messenger.PostMessage(context.WithoutCancel(ctx), event.ConversationID, s.cfg.Failure); postErr != nil {
				logger.Warn().Err(postErr).Msg("Failed to post failure notice")
			}
		}
		return err
	}

	sess.Append(domain.NewTurn(result.Text, domain.RoleAssistant)).Trim(s.cfg.HistoryLimit)
	*final = *sess

	logger.Info().
		Int("tokens", result.Tokens()).
		Int("edits", result.Edits).
		Int("history", len(sess.Messages)).
		Msg("Message answered")
	return nil
}

// acquire claims the session. Surfaces that auto-create get a new session inserted
// already pending, so creating and claiming it is a single store write.
func (s *ConversationService) acquire(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	sess, err := s.acquirer.Acquire(ctx, key, s.cfg.SessionTTL)
	if !errors.Is(err, domain.ErrSessionNotFound) || !key.Kind.AutoCreate() {
		return sess, err
	}

	fresh := s.greetingSession()
	fresh.Pending = true
	created, err := s.store.Create(ctx, key, fresh, s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if created {
		zerolog.Ctx(ctx).Info().Msg("Session created")
		return fresh, nil
	}
	// Another event created it first.
	return s.acquirer.Acquire(ctx, key, s.cfg.SessionTTL)
}

// release writes the session back idle. It runs on every exit path once the session is held.
func (s *ConversationService) release(ctx context.Context, key domain.SessionKey, sess *domain.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	sess.Pending = false
	if err := s.store.Set(ctx, key, sess, s.cfg.SessionTTL); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to release session")
	}
}

func (s *ConversationService) reply(ctx context.Context, sess *domain.Session, channelID string) (StreamResult, error) {
	provider, err := s.providers.GetProvider(s.cfg.Provider)
	if err != nil {
		return StreamResult{}, &domain.ProviderError{Provider: s.cfg.Provider, Err: err}
	}

	if s.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StreamTimeout)
		defer cancel()
	}

	req := llm.Request{
		Model:       s.cfg.Model,
		Messages:    domain.WithSystemPrompt(s.cfg.SystemPrompt, sess.Messages),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	return s.streamer.Run(ctx, provider, req, channelID)
}

func (s *ConversationService) greetingSession() *domain.Session {
	if s.cfg.Greeting == "" {
		return domain.NewSession()
	}
	return domain.NewSession(domain.NewTurn(s.cfg.Greeting, domain.RoleAssistant))
}
