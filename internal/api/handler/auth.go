package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Rrens/slack-gpt/internal/api/response"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/security"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// AuthHandler handles ops API authentication
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Token exchanges the admin password for an access token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input domain.AdminLogin
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(input); err != nil {
		response.ValidationFailed(w, err)
		return
	}

	token, err := h.authService.Login(r.Context(), input)
	if err != nil {
		if errors.Is(err, security.ErrInvalidCredentials) {
			response.Unauthorized(w, "invalid credentials")
			return
		}
		log.Warn().Err(err).Msg("Admin login failed")
		response.Unauthorized(w, err.Error())
		return
	}

	response.OK(w, token)
}
