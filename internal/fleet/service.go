package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bintracker/internal/geo"
)

// Service is the read and collect surface used by the HTTP layer. Status is
// derived from telemetry on every call.
type Service struct {
	store     *Store
	events    EventLogger
	publisher Publisher
	replay    ReplayStore
	log       logrus.FieldLogger
}

func NewService(store *Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log.WithField("component", "fleet")}
}

// AttachEventLogger records accepted collections.
func (s *Service) AttachEventLogger(l EventLogger) {
	s.events = l
}

// AttachPublisher sends a bins_collected event after each collection.
func (s *Service) AttachPublisher(p Publisher) {
	s.publisher = p
}

func (s *Service) AttachReplayStore(r ReplayStore) {
	s.replay = r
}

func (s *Service) ListBins(th Thresholds) ([]Bin, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("list bins: %w", err)
	}
	return ClassifyAll(s.store.List(), th), nil
}

func (s *Service) GetBin(id int, th Thresholds) (Bin, error) {
	if err := th.Validate(); err != nil {
		return Bin{}, fmt.Errorf("get bin: %w", err)
	}
	b, err := s.store.Get(id)
	if err != nil {
		return Bin{}, err
	}
	b.Status = Classify(b, th)
	return b, nil
}

// Collect resets the known bins among ids and returns them in input order
// with duplicates removed.
func (s *Service) Collect(ctx context.Context, ids []int) ([]int, error) {
	seen := make(map[int]struct{}, len(ids))
	unique := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	collected, skipped, err := s.store.ApplyTargetedReset(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if len(skipped) > 0 {
		s.log.WithField("bin_ids", skipped).Info("collect skipped unknown bins")
	}
	if len(collected) == 0 {
		return collected, nil
	}

	if s.events != nil {
		evt := CollectionEvent{
			ID:        uuid.NewString(),
			Requested: ids,
			Collected: collected,
			CreatedAt: time.Now().UTC(),
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.events.AppendCollection(ctx, evt); err != nil {
			s.log.WithError(err).Warn("collection event not recorded")
		}
	}
	if s.publisher != nil {
		evt := newEvent(EventBinsCollected)
		evt.Collected = collected
		s.publisher.Publish(evt)
	}
	return collected, nil
}

// CollectOnce is Collect keyed by a client-chosen idempotency key. A repeated
// key returns the first result without touching the store, and a key whose
// first request is still running fails with ErrCollectInFlight. An empty key
// or a missing replay store falls through to Collect.
func (s *Service) CollectOnce(ctx context.Context, key string, ids []int) (collected []int, replayed bool, err error) {
	if key == "" || s.replay == nil {
		collected, err = s.Collect(ctx, ids)
		return collected, false, err
	}
	prev, claimed, err := s.replay.Reserve(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("collect key %q: %w", key, err)
	}
	if !claimed {
		return prev, true, nil
	}

	collected, err = s.Collect(ctx, ids)
	if err != nil {
		if rerr := s.replay.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.log.WithError(rerr).Warn("collect key not released")
		}
		return nil, false, err
	}
	if err := s.replay.Complete(context.WithoutCancel(ctx), key, collected); err != nil {
		s.log.WithError(err).Warn("collect key not completed")
	}
	return collected, false, nil
}

// RecentCollections lists logged collections, newest first.
func (s *Service) RecentCollections(ctx context.Context, limit, offset int) ([]CollectionEvent, error) {
	if s.events == nil {
		return nil, fmt.Errorf("recent collections: %w", ErrNoEventLog)
	}
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("recent collections: %w: limit must be positive and offset non-negative", ErrInvalidRequest)
	}
	return s.events.ListCollections(ctx, limit, offset)
}

// CollectionCount reports how many collections the event log holds.
func (s *Service) CollectionCount(ctx context.Context) (int, error) {
	if s.events == nil {
		return 0, fmt.Errorf("collection count: %w", ErrNoEventLog)
	}
	return s.events.CountCollections(ctx)
}

// Route is a hub-anchored visiting order.
type Route struct {
	Path       []geo.Point `json:"path"`
	Stops      []int       `json:"stops"`
	DistanceKM float64     `json:"distance_km"`
}

// OptimizedRoute plans a tour over every bin that is full or inactive under
// the default thresholds.
func (s *Service) OptimizedRoute() Route {
	snap := s.store.List()
	due := NeedsService(snap, DefaultThresholds())
	hub := s.store.Hub()
	order := OrderStops(due, hub)
	path := tourPath(order, hub)

	stops := make([]int, 0, len(order))
	for _, b := range order {
		stops = append(stops, b.ID)
	}
	return Route{Path: path, Stops: stops, DistanceKM: RouteDistance(path)}
}

// NearbyBin is a classified bin with its distance from the query point.
type NearbyBin struct {
	Bin
	DistanceKM float64 `json:"distance_km"`
}

func (s *Service) NearbyBins(p geo.Point, radiusKM float64, limit int) ([]NearbyBin, error) {
	if radiusKM <= 0 {
		return nil, fmt.Errorf("nearby bins: %w: radius must be positive", ErrInvalidRequest)
	}
	hits, err := s.store.Nearby(p, radiusKM, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby bins: %w", err)
	}
	th := DefaultThresholds()
	out := make([]NearbyBin, 0, len(hits))
	for _, h := range hits {
		b, err := s.store.Get(h.ID)
		if err != nil {
			continue
		}
		b.Status = Classify(b, th)
		out = append(out, NearbyBin{Bin: b, DistanceKM: h.DistanceKM})
	}
	return out, nil
}
