package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"bintracker/internal/fleet"
)

// Deps are the collaborators the HTTP layer serves from. Simulator, Hub and
// ReadyChecks are optional.
type Deps struct {
	Service     *fleet.Service
	Store       *fleet.Store
	Simulator   *fleet.Simulator
	Hub         *fleet.Hub
	Log         logrus.FieldLogger
	ReadyChecks map[string]func(context.Context) error
}

// AttachRoutes wires HTTP routes to handlers. It installs the request logger,
// so call it before any other route is registered on r.
func AttachRoutes(r chi.Router, deps Deps) *Handler {
	h := &Handler{
		svc:     deps.Service,
		store:   deps.Store,
		sim:     deps.Simulator,
		hub:     deps.Hub,
		log:     deps.Log,
		latency: newBucketCounter(defaultLatencyBuckets()),
		checks:  deps.ReadyChecks,
	}
	r.Use(JSONLogger(deps.Log, h.latency.observe))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			h.log.WithError(err).Debug("health response not written")
		}
	})
	r.Get("/ready", h.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/bins", h.ListBins)
		r.Get("/bins/nearby", h.NearbyBins)
		r.Get("/bin/{id}", h.GetBin)
		r.Post("/collect", h.Collect)
		r.Get("/optimized_route", h.OptimizedRoute)
		r.Get("/collections", h.ListCollections)
		r.Get("/stats", h.Stats)
	})

	r.Get("/ws/fleet", h.FleetWebsocket)
	return h
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
