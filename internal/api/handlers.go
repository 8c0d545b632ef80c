package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"bintracker/internal/fleet"
	"bintracker/internal/geo"
)

const (
	maxBodyBytes         = 1 << 20
	defaultNearbyRadius  = 0.5
	defaultCollectionsPg = 20
	readyTimeout         = 2 * time.Second
)

type Handler struct {
	svc     *fleet.Service
	store   *fleet.Store
	sim     *fleet.Simulator
	hub     *fleet.Hub
	log     logrus.FieldLogger
	latency *bucketCounter
	checks  map[string]func(context.Context) error
}

// respondServiceError maps fleet errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 without detail.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		respondError(w, http.StatusNotFound, fleet.ErrNotFound.Error())
	case errors.Is(err, fleet.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fleet.ErrCollectInFlight):
		respondError(w, http.StatusConflict, fleet.ErrCollectInFlight.Error())
	case errors.Is(err, fleet.ErrNoEventLog):
		respondError(w, http.StatusServiceUnavailable, fleet.ErrNoEventLog.Error())
	case errors.Is(err, fleet.ErrTransientMutation):
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("mutation rolled back")
		respondError(w, http.StatusServiceUnavailable, "update failed, retry")
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseThresholds reads optional full, nearly_full and inactive query values
// over the defaults.
func parseThresholds(r *http.Request) (fleet.Thresholds, error) {
	th := fleet.DefaultThresholds()
	q := r.URL.Query()
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"full", &th.Full},
		{"nearly_full", &th.NearlyFull},
		{"inactive", &th.Inactive},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return th, fmt.Errorf("threshold %s must be an integer: %w", f.name, err)
		}
		*f.dst = v
	}
	return th, nil
}

func (h *Handler) ListBins(w http.ResponseWriter, r *http.Request) {
	th, err := parseThresholds(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	bins, err := h.svc.ListBins(th)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bins)
}

func (h *Handler) GetBin(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bin id")
		return
	}
	th, err := parseThresholds(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	bin, err := h.svc.GetBin(id, th)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bin)
}

type collectPayload struct {
	BinIDs json.RawMessage `json:"bin_ids"`
}

type collectResponse struct {
	Message       string `json:"message"`
	CollectedBins []int  `json:"collected_bins"`
}

// Collect resets the listed bins. An Idempotency-Key header makes retries
// return the first result.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var payload collectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(payload.BinIDs) == 0 || string(payload.BinIDs) == "null" {
		respondError(w, http.StatusBadRequest, "bin_ids is required")
		return
	}
	var ids []int
	if err := json.Unmarshal(payload.BinIDs, &ids); err != nil {
		respondError(w, http.StatusBadRequest, "bin_ids must be a list of integers")
		return
	}

	collected, replayed, err := h.svc.CollectOnce(r.Context(), r.Header.Get("Idempotency-Key"), ids)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replay", "true")
	}
	respondJSON(w, http.StatusOK, collectResponse{
		Message:       "Bins collected and reset",
		CollectedBins: collected,
	})
}

type routeResponse struct {
	Path       [][2]float64 `json:"path"`
	Stops      []int        `json:"stops"`
	DistanceKM float64      `json:"distance_km"`
}

func (h *Handler) OptimizedRoute(w http.ResponseWriter, r *http.Request) {
	route := h.svc.OptimizedRoute()
	path := make([][2]float64, 0, len(route.Path))
	for _, p := range route.Path {
		path = append(path, [2]float64{p.Lat, p.Lon})
	}
	respondJSON(w, http.StatusOK, routeResponse{
		Path:       path,
		Stops:      route.Stops,
		DistanceKM: route.DistanceKM,
	})
}

func (h *Handler) NearbyBins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		respondError(w, http.StatusBadRequest, "lat and lon are required numbers")
		return
	}
	radius := defaultNearbyRadius
	if raw := q.Get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "radius_km must be a number")
			return
		}
		radius = v
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	bins, err := h.svc.NearbyBins(geo.Point{Lat: lat, Lon: lon}, radius, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bins)
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultCollectionsPg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.svc.RecentCollections(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"collections": events,
		"limit":       limit,
		"offset":      offset,
	})
}

type statsResponse struct {
	Bins           int                  `json:"bins"`
	StatusCounts   map[fleet.Status]int `json:"status_counts"`
	Commits        int64                `json:"commits"`
	Rollbacks      int64                `json:"rollbacks"`
	SimTicks       int64                `json:"sim_ticks"`
	SimFailures    int64                `json:"sim_failures"`
	Subscribers    int                  `json:"ws_subscribers"`
	LatencyBuckets map[string]int64     `json:"latency_buckets"`
	Collections    *int                 `json:"collections,omitempty"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	bins, err := h.svc.ListBins(fleet.DefaultThresholds())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	counts := make(map[fleet.Status]int)
	for _, b := range bins {
		if b.IsHub() {
			continue
		}
		counts[b.Status]++
	}
	resp := statsResponse{
		Bins:           len(bins),
		StatusCounts:   counts,
		Commits:        h.store.Commits(),
		Rollbacks:      h.store.Rollbacks(),
		LatencyBuckets: h.latency.snapshot(),
	}
	if h.sim != nil {
		resp.SimTicks = h.sim.Ticks()
		resp.SimFailures = h.sim.Failures()
	}
	if h.hub != nil {
		resp.Subscribers = h.hub.Subscribers()
	}
	if n, err := h.svc.CollectionCount(r.Context()); err == nil {
		resp.Collections = &n
	} else if !errors.Is(err, fleet.ErrNoEventLog) {
		h.log.WithError(err).Warn("collection count unavailable")
	}
	respondJSON(w, http.StatusOK, resp)
}

// Ready runs every readiness check and reports 503 with the failing names
// when any of them errors.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.WithError(err).WithField("check", name).Warn("readiness check failed")
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) FleetWebsocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}
	h.hub.ServeFleet(w, r)
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}
