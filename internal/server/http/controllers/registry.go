package controllers

import (
	"net/http"

	"github.com/inflow-io/inflow/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general   *GeneralController
	events    *EventsController
	queue     *QueueController
	breakers  *BreakersController
	ratelimit *RateLimitController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general:   NewGeneralController(rt),
		events:    NewEventsController(rt),
		queue:     NewQueueController(rt),
		breakers:  NewBreakersController(rt),
		ratelimit: NewRateLimitController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.events.RegisterRoutes(mux)
	r.queue.RegisterRoutes(mux)
	r.breakers.RegisterRoutes(mux)
	r.ratelimit.RegisterRoutes(mux)
}
