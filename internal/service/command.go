package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/rs/zerolog/log"
)

// CommandReply is what a slash command answers with
type CommandReply struct {
	Text      string
	Ephemeral bool
}

// CommandMessages are the replies of the session commands
type CommandMessages struct {
	Greeting    string
	Farewell    string
	Reset       string
	ChannelOnly string
}

// CommandService implements the channel session commands: start, end and reset
type CommandService struct {
	store    domain.SessionStore
	ttl      time.Duration
	messages CommandMessages
}

// NewCommandService creates a new command service
func NewCommandService(store domain.SessionStore, ttl time.Duration, messages CommandMessages) *CommandService {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &CommandService{store: store, ttl: ttl, messages: messages}
}

// Start opens a channel session seeded with the greeting
func (s *CommandService) Start(ctx context.Context, req domain.CommandRequest) (CommandReply, error) {
	if req.FromDirectMessage() {
		return s.channelOnly(), nil
	}
	if err := s.seed(ctx, req.ChannelID); err != nil {
		return CommandReply{}, err
	}
	log.Info().Str("channel_id", req.ChannelID).Str("actor_id", req.ActorID).Msg("Channel session started")
	return CommandReply{Text: s.messages.Greeting}, nil
}

// End deletes the channel session
func (s *CommandService) End(ctx context.Context, req domain.CommandRequest) (CommandReply, error) {
	if req.FromDirectMessage() {
		return s.channelOnly(), nil
	}
	key := domain.NewSessionKey(domain.SessionChannel, req.ChannelID)
	if err := s.store.Delete(ctx, key); err != nil {
		return CommandReply{}, fmt.Errorf("failed to end session: %w", err)
	}
	log.Info().Str("channel_id", req.ChannelID).Str("actor_id", req.ActorID).Msg("Channel session ended")
	return CommandReply{Text: s.messages.Farewell}, nil
}

// Reset replaces the channel session with a fresh one
func (s *CommandService) Reset(ctx context.Context, req domain.CommandRequest) (CommandReply, error) {
	if req.FromDirectMessage() {
		return s.channelOnly(), nil
	}
	if err := s.seed(ctx, req.ChannelID); err != nil {
		return CommandReply{}, err
	}
	log.Info().Str("channel_id", req.ChannelID).Str("actor_id", req.ActorID).Msg("Channel session reset")
	return CommandReply{Text: s.messages.Reset}, nil
}

func (s *CommandService) seed(ctx context.Context, channelID string) error {
	key := domain.NewSessionKey(domain.SessionChannel, channelID)
	sess := domain.NewSession(domain.NewTurn(s.messages.Greeting, domain.RoleAssistant))
	if err := s.store.Set(ctx, key, sess, s.ttl); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

func (s *CommandService) channelOnly() CommandReply {
	return CommandReply{Text: s.messages.ChannelOnly, Ephemeral: true}
}
