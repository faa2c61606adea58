package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/slack-gpt/internal/api/response"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLister describes the registered completion providers
type ProviderLister interface {
	GetProvidersInfo() []llm.ProviderInfo
	DefaultProvider() string
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including session store connectivity
func ReadyCheck(sessions Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.Ping(r.Context()); err != nil {
			if domain.IsStoreUnavailable(err) {
				response.ServiceUnavailable(w, "session store not ready")
				return
			}
			response.ServiceUnavailable(w, err.Error())
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}

// ListLLMProviders returns the registered completion providers
func ListLLMProviders(providers ProviderLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]any{
			"providers":        providers.GetProvidersInfo(),
			"default_provider": providers.DefaultProvider(),
		})
	}
}
