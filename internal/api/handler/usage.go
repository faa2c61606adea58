package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/slack-gpt/internal/api/response"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UsageHandler serves month-to-date usage reports
type UsageHandler struct {
	usageService *service.UsageService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(usageService *service.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// Ranking lists this month's actors by tokens, highest first
func (h *UsageHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.usageService.Ranking(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build usage ranking")
		response.InternalError(w, "failed to read usage")
		return
	}

	response.OK(w, map[string]any{
		"users": ranking,
		"count": len(ranking),
	})
}

// User returns one actor's month-to-date usage
func (h *UsageHandler) User(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		response.BadRequest(w, "missing user ID")
		return
	}

	stats, err := h.usageService.UserStats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			response.NotFound(w, "no usage for user")
			return
		}
		log.Error().Err(err).Str("actor_id", userID).Msg("Failed to read user usage")
		response.InternalError(w, "failed to read usage")
		return
	}

	response.OK(w, stats)
}

// Billing returns the provider-reported month-to-date tokens and cost
func (h *UsageHandler) Billing(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usageService.Billing(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read billing")
		response.Error(w, http.StatusBadGateway, err.Error())
		return
	}

	response.OK(w, summary)
}
