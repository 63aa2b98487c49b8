package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/inflow-io/inflow/internal/runtime"
)

// EventsController handles the inbound event intake endpoint.
type EventsController struct {
	rt *runtime.Runtime
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime) *EventsController {
	return &EventsController{rt: rt}
}

// RegisterRoutes registers event intake routes with the given mux.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events", c.handleIngest)
}

type ingestReq struct {
	Key      string `json:"key"`
	Body     string `json:"body"`
	SourceID string `json:"sourceId"`
	Label    string `json:"label"`
}

// handleIngest accepts one event and runs it through admission control.
// POST /v1/events
//
// Returns 202 Accepted when the event enters the debounce buffer, 429 when
// the sender is rate limited or banned. Rate limit headers follow the
// X-RateLimit-* convention.
func (c *EventsController) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req ingestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key required")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body required")
		return
	}
	if req.SourceID == "" {
		req.SourceID = uuid.NewString()
	}

	d := c.rt.Ingest(req.Key, req.Body, req.SourceID, req.Label)
	switch d.Outcome {
	case runtime.OutcomeBanned:
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]any{
			"status":   "banned",
			"key":      req.Key,
			"banUntil": d.Ban.Until,
			"reason":   d.Ban.Reason,
		})
	case runtime.OutcomeRateLimited:
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Rate.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Rate.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Rate.ResetAt.Unix(), 10))
		w.Header().Set("Retry-After", strconv.Itoa(d.Rate.RetryAfter))
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]any{
			"status":     "rate_limited",
			"key":        req.Key,
			"retryAfter": d.Rate.RetryAfter,
			"reason":     d.Rate.Reason,
		})
	default:
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Rate.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Rate.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Rate.ResetAt.Unix(), 10))
		writeJSONStatus(w, http.StatusAccepted, map[string]any{
			"status":   "buffered",
			"key":      req.Key,
			"sourceId": req.SourceID,
		})
	}
}
