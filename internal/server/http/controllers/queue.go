package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/inflow-io/inflow/internal/runtime"
)

// QueueController handles work queue inspection and dead letter admin
// endpoints.
type QueueController struct {
	rt *runtime.Runtime
}

// NewQueueController creates a new queue controller.
func NewQueueController(rt *runtime.Runtime) *QueueController {
	return &QueueController{rt: rt}
}

// RegisterRoutes registers queue routes with the given mux.
func (c *QueueController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/queue/metrics", c.handleMetrics)
	mux.HandleFunc("/v1/queue/dlq", c.handleListDLQ)
	mux.HandleFunc("/v1/queue/dlq/retry", c.handleRetryDLQ)
	mux.HandleFunc("/v1/archive/dlq", c.handleListArchive)
}

// handleMetrics returns queue counters plus debounce buffer occupancy.
// GET /v1/queue/metrics
func (c *QueueController) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, map[string]any{
		"queue":  c.rt.QueueMetrics(),
		"buffer": c.rt.BufferStats(),
	})
}

// handleListDLQ lists items in the live dead letter queue.
// GET /v1/queue/dlq?limit=<n>
func (c *QueueController) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	items := c.rt.DeadLetters(limit)
	writeJSON(w, map[string]any{"items": items, "count": len(items)})
}

type retryDLQReq struct {
	ID string `json:"id"`
}

// handleRetryDLQ requeues a dead lettered item with a fresh retry budget.
// POST /v1/queue/dlq/retry
func (c *QueueController) handleRetryDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req retryDLQReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}
	if !c.rt.RetryDeadLetter(req.ID) {
		writeError(w, http.StatusNotFound, "item not in dead letter queue")
		return
	}
	writeJSON(w, map[string]string{"status": "requeued", "id": req.ID})
}

// handleListArchive lists archived dead letters, optionally filtered by a
// CEL expression.
// GET /v1/archive/dlq?limit=<n>&filter=<cel>
func (c *QueueController) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	arc := c.rt.Archive()
	if arc == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	items, err := arc.List(limit, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"items": items, "count": len(items)})
}
