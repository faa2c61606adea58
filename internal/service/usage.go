package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/usage"
)

// UsageService answers usage questions for the Slack modals and the ops API
type UsageService struct {
	reporter *usage.Reporter
	billing  llm.BillingSource
}

// NewUsageService creates a new usage service. billing may be nil when no provider
// exposes a usage endpoint.
func NewUsageService(reporter *usage.Reporter, billing llm.BillingSource) *UsageService {
	return &UsageService{reporter: reporter, billing: billing}
}

// Billing returns the provider-reported month-to-date tokens and their cost
func (s *UsageService) Billing(ctx context.Context) (*domain.BillingSummary, error) {
	if s.billing == nil {
		return nil, errors.New("billing is not available")
	}
	tokens, err := s.billing.MonthToDateTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get billing: %w", err)
	}
	return &domain.BillingSummary{Tokens: tokens, Cost: s.reporter.Cost(tokens)}, nil
}

// Ranking returns this month's actors by total tokens, highest first
func (s *UsageService) Ranking(ctx context.Context) ([]domain.UserUsage, error) {
	return s.reporter.Ranking(ctx)
}

// UserStats returns one actor's month-to-date usage
func (s *UsageService) UserStats(ctx context.Context, actorID string) (*domain.UserUsage, error) {
	return s.reporter.UserStats(ctx, actorID)
}

// SessionService exposes session maintenance to the ops API
type SessionService struct {
	store domain.SessionStore
}

// NewSessionService creates a new session service
func NewSessionService(store domain.SessionStore) *SessionService {
	return &SessionService{store: store}
}

// Clear removes a session regardless of its pending flag
func (s *SessionService) Clear(ctx context.Context, kind, id string) error {
	k, err := domain.ParseSessionKind(kind)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, domain.NewSessionKey(k, id)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Ping checks that the session store is reachable
func (s *SessionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
