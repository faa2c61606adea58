package handler

import (
	"net/http"

	"github.com/Rrens/slack-gpt/internal/api/response"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SessionHandler handles session maintenance endpoints
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Delete clears a session, including one stuck pending
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	id := chi.URLParam(r, "id")
	if _, err := domain.ParseSessionKind(kind); err != nil || id == "" {
		response.BadRequest(w, "invalid session key")
		return
	}

	if err := h.sessionService.Clear(r.Context(), kind, id); err != nil {
		log.Error().Err(err).Str("session_kind", kind).Str("session_id", id).Msg("Failed to clear session")
		if domain.IsStoreUnavailable(err) {
			response.ServiceUnavailable(w, "session store unavailable")
			return
		}
		response.InternalError(w, "failed to clear session")
		return
	}

	log.Info().Str("session_kind", kind).Str("session_id", id).Msg("Session cleared")
	response.NoContent(w)
}
