package service

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Login(t *testing.T) {
	hash, err := security.HashPassword("correct horse")
	require.NoError(t, err)
	jwtManager := security.NewJWTManager("test-secret", time.Hour)
	svc := NewAuthService(hash, jwtManager)

	token, err := svc.Login(context.Background(), domain.AdminLogin{Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := jwtManager.ValidateAccessToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, claims.Subject)

	_, err = svc.Login(context.Background(), domain.AdminLogin{Password: "wrong"})
	assert.ErrorIs(t, err, security.ErrInvalidCredentials)
}

func TestAuthService_LoginDisabledWithoutHash(t *testing.T) {
	svc := NewAuthService("", security.NewJWTManager("test-secret", time.Hour))

	_, err := svc.Login(context.Background(), domain.AdminLogin{Password: "anything"})
	assert.Error(t, err)
}
