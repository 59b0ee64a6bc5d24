package handler

import (
	"net/http"

	"github.com/Zagas-life-dev/studybetterlib/internal/api/response"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/postgres"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including database connectivity
func ReadyCheck(db *postgres.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "database not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}

// ListLLMProviders returns available LLM providers
func ListLLMProviders(llmRouter *llm.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]any{
			"providers":        llmRouter.GetProvidersInfo(),
			"default_provider": llmRouter.DefaultProvider(),
		})
	}
}

// SchemaMode reports which chat table layout is currently active
func SchemaMode(detector *postgres.SchemaDetector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"mode": string(detector.Mode(r.Context())),
		})
	}
}

// RefreshSchemaMode drops the cached schema probe so the next request
// re-detects. Meant to be called right after running migrations against
// a live process.
func RefreshSchemaMode(detector *postgres.SchemaDetector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detector.Invalidate()
		response.OK(w, map[string]string{
			"mode": string(detector.Mode(r.Context())),
		})
	}
}
