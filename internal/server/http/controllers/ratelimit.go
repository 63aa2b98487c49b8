package controllers

import (
	"net/http"

	"github.com/inflow-io/inflow/internal/runtime"
)

// RateLimitController exposes per-key rate limit state.
type RateLimitController struct {
	rt *runtime.Runtime
}

// NewRateLimitController creates a new rate limit controller.
func NewRateLimitController(rt *runtime.Runtime) *RateLimitController {
	return &RateLimitController{rt: rt}
}

// RegisterRoutes registers rate limit routes with the given mux.
func (c *RateLimitController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/ratelimit", c.handleInspect)
}

// handleInspect returns the current window state and any active ban for a
// key, without consuming quota.
// GET /v1/ratelimit?key=<key>
func (c *RateLimitController) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key required")
		return
	}
	limiter := c.rt.Limiter()
	resp := map[string]any{
		"key":  key,
		"rate": limiter.Snapshot(key),
	}
	if info, ok := limiter.GetBanInfo(key); ok {
		resp["ban"] = info
	}
	writeJSON(w, resp)
}
