package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/inflow-io/inflow/internal/breaker"
	"github.com/inflow-io/inflow/internal/runtime"
)

// BreakersController exposes circuit breaker state and admin controls.
type BreakersController struct {
	rt *runtime.Runtime
}

// NewBreakersController creates a new breakers controller.
func NewBreakersController(rt *runtime.Runtime) *BreakersController {
	return &BreakersController{rt: rt}
}

// RegisterRoutes registers breaker routes with the given mux.
func (c *BreakersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/breakers", c.handleList)
	mux.HandleFunc("/v1/breakers/reset", c.handleReset)
	mux.HandleFunc("/v1/breakers/open", c.handleForceOpen)
}

// handleList returns the status of every registered breaker.
// GET /v1/breakers
func (c *BreakersController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, map[string]any{"breakers": c.rt.Breakers().Statuses()})
}

type breakerNameReq struct {
	Name string `json:"name"`
}

// handleReset manually closes a breaker.
// POST /v1/breakers/reset
func (c *BreakersController) handleReset(w http.ResponseWriter, r *http.Request) {
	b, ok := c.decodeBreaker(w, r)
	if !ok {
		return
	}
	b.Reset()
	writeJSON(w, b.Status())
}

// handleForceOpen manually opens a breaker, for maintenance windows.
// POST /v1/breakers/open
func (c *BreakersController) handleForceOpen(w http.ResponseWriter, r *http.Request) {
	b, ok := c.decodeBreaker(w, r)
	if !ok {
		return
	}
	b.ForceOpen()
	writeJSON(w, b.Status())
}

func (c *BreakersController) decodeBreaker(w http.ResponseWriter, r *http.Request) (*breaker.Breaker, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return nil, false
	}
	var req breakerNameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	b, ok := c.rt.Breakers().Get(req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown breaker")
		return nil, false
	}
	return b, true
}
