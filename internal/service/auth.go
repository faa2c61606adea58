package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/security"
)

// AdminSubject is the token subject issued to the ops API operator
const AdminSubject = "admin"

// AuthService issues ops API tokens
type AuthService struct {
	passwordHash string
	jwtManager   *security.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(passwordHash string, jwtManager *security.JWTManager) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
	}
}

// Login checks the admin password and returns an access token
func (s *AuthService) Login(ctx context.Context, input domain.AdminLogin) (*domain.AccessToken, error) {
	if s.passwordHash == "" {
		return nil, errors.New("admin login is disabled")
	}

	if err := security.CheckPassword(s.passwordHash, input.Password); err != nil {
		return nil, security.ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateAccessToken(AdminSubject, AdminSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &domain.AccessToken{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}
