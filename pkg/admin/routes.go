// Route registration for the management API.

package admin

import (
	"net/http"
)

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /config", a.handleConfig)
	mux.HandleFunc("GET /logs", a.handleLogs)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	// Collection
	mux.HandleFunc("GET /imposters", a.handleListImposters)
	mux.HandleFunc("POST /imposters", a.handleCreateImposter)
	mux.HandleFunc("PUT /imposters", a.handleReplaceImposters)
	mux.HandleFunc("DELETE /imposters", a.handleDeleteImposters)

	// Entity
	mux.HandleFunc("GET /imposters/{port}", a.withImposter(a.handleGetImposter))
	mux.HandleFunc("DELETE /imposters/{port}", a.handleDeleteImposter)
	mux.HandleFunc("DELETE /imposters/{port}/savedRequests", a.withImposter(a.handleClearRequests))
}
