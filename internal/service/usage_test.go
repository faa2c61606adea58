package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/repository/memory"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUsageService_Billing(t *testing.T) {
	billing := new(MockBillingSource)
	billing.On("MonthToDateTokens", mock.Anything).Return(1000, nil).Once()
	svc := NewUsageService(usage.NewReporter(&fakeSink{}, 0.0000027), billing)

	summary, err := svc.Billing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000, summary.Tokens)
	assert.InDelta(t, 0.0027, summary.Cost, 1e-12)

	billing.On("MonthToDateTokens", mock.Anything).Return(0, errors.New("401")).Once()
	_, err = svc.Billing(context.Background())
	assert.Error(t, err)
	billing.AssertExpectations(t)
}

func TestUsageService_BillingUnavailable(t *testing.T) {
	svc := NewUsageService(usage.NewReporter(&fakeSink{}, 0), nil)
	_, err := svc.Billing(context.Background())
	assert.Error(t, err)
}

func TestUsageService_UserStatsFromRecorder(t *testing.T) {
	recorder, sink := newTestRecorder()
	scope := recorder.Begin("U7")
	scope.SetTokens(40)
	scope.End()

	svc := NewUsageService(usage.NewReporter(sink, 0), nil)

	stats, err := svc.UserStats(context.Background(), "U7")
	require.NoError(t, err)
	assert.Equal(t, 40, stats.TotalTokens)

	_, err = svc.UserStats(context.Background(), "U404")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSessionService_Clear(t *testing.T) {
	store := memory.NewSessionStore()
	ctx := context.Background()
	stuck := domain.NewSession()
	stuck.Pending = true
	require.NoError(t, store.Set(ctx, channelKey, stuck, time.Minute))

	svc := NewSessionService(store)
	require.NoError(t, svc.Ping(ctx))
	require.NoError(t, svc.Clear(ctx, "channel", "C1"))

	_, err := store.Get(ctx, channelKey)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Error(t, svc.Clear(ctx, "thread", "C1"))
}
