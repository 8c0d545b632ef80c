package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"bintracker/internal/geo"
)

// Store owns the bin set. Published snapshots are never modified; a mutation
// builds a private copy and swaps it in on commit, so readers see either the
// whole old set or the whole new one.
type Store struct {
	mu      sync.RWMutex // guards bins
	writeMu sync.Mutex   // one mutation in flight
	bins    []Bin
	index   map[int]int // id -> position, fixed at construction

	persistence Persistence
	geo         GeoLocator

	commits   atomic.Int64
	rollbacks atomic.Int64
}

// NewStore builds a store from the seed list. Exactly one hub must be present:
// bin 0 with type HUB. Every bin must carry valid telemetry.
func NewStore(seed []Bin) (*Store, error) {
	bins := make([]Bin, len(seed))
	copy(bins, seed)
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })

	index := make(map[int]int, len(bins))
	for i, b := range bins {
		if b.ID < 0 {
			return nil, fmt.Errorf("new store: bin id %d is negative", b.ID)
		}
		if _, dup := index[b.ID]; dup {
			return nil, fmt.Errorf("new store: duplicate bin id %d", b.ID)
		}
		if err := validTelemetry(b); err != nil {
			return nil, fmt.Errorf("new store: %w", err)
		}
		if b.IsHub() != (b.Type == HubType) {
			return nil, fmt.Errorf("new store: bin %d has type %q, only bin %d may be the %s", b.ID, b.Type, HubID, HubType)
		}
		index[b.ID] = i
	}
	if _, ok := index[HubID]; !ok {
		return nil, fmt.Errorf("new store: hub bin %d missing", HubID)
	}

	return &Store{bins: bins, index: index}, nil
}

// AttachPersistence connects a durable mirror. Call before the store is shared.
func (s *Store) AttachPersistence(p Persistence) {
	s.persistence = p
}

// AttachGeo indexes every bin position. Call before the store is shared.
func (s *Store) AttachGeo(g GeoLocator) error {
	for _, b := range s.snapshot() {
		if err := g.Add(b.ID, b.Lat, b.Lon); err != nil {
			return fmt.Errorf("attach geo: index bin %d: %w", b.ID, err)
		}
	}
	s.geo = g
	return nil
}

func (s *Store) snapshot() []Bin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bins
}

// List returns a copy of every bin ordered by id.
func (s *Store) List() []Bin {
	snap := s.snapshot()
	out := make([]Bin, len(snap))
	copy(out, snap)
	return out
}

func (s *Store) Get(id int) (Bin, error) {
	pos, ok := s.index[id]
	if !ok {
		return Bin{}, fmt.Errorf("get bin %d: %w", id, ErrNotFound)
	}
	return s.snapshot()[pos], nil
}

func (s *Store) Hub() Bin {
	return s.snapshot()[s.index[HubID]]
}

// ApplyBulkMutation runs mutator over every bin and commits the result as a
// unit. Any error discards the whole mutation.
func (s *Store) ApplyBulkMutation(ctx context.Context, mutator func(Bin) (Bin, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	committed := false
	defer func() {
		if !committed {
			s.rollbacks.Add(1)
		}
	}()

	cur := s.snapshot()
	next := make([]Bin, len(cur))
	for i, b := range cur {
		nb, err := mutator(b)
		if err != nil {
			return fmt.Errorf("bulk mutation: bin %d: %w", b.ID, err)
		}
		if err := checkMutation(b, nb); err != nil {
			return fmt.Errorf("bulk mutation: %w", err)
		}
		next[i] = nb
	}

	if err := s.commitLocked(ctx, next); err != nil {
		return fmt.Errorf("bulk mutation: %w", err)
	}
	committed = true
	return nil
}

// ApplyTargetedReset marks the given bins as just emptied. Unknown ids are
// returned in notCollected; they are not an error.
func (s *Store) ApplyTargetedReset(ctx context.Context, ids []int) (collected, notCollected []int, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.snapshot()
	next := make([]Bin, len(cur))
	copy(next, cur)

	collected = make([]int, 0, len(ids))
	notCollected = make([]int, 0)
	for _, id := range ids {
		pos, ok := s.index[id]
		if !ok {
			notCollected = append(notCollected, id)
			continue
		}
		next[pos].Fill = 0
		next[pos].LastEmptiedDaysAgo = 0
		next[pos].Status = StatusOK
		collected = append(collected, id)
	}
	if len(collected) == 0 {
		return collected, notCollected, nil
	}

	if err := s.commitLocked(ctx, next); err != nil {
		s.rollbacks.Add(1)
		return nil, nil, fmt.Errorf("targeted reset: %w", err)
	}
	return collected, notCollected, nil
}

func (s *Store) commitLocked(ctx context.Context, next []Bin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.persistence != nil {
		if err := s.persistence.SaveBins(ctx, next); err != nil {
			return fmt.Errorf("%w: persist snapshot: %w", ErrTransientMutation, err)
		}
	}
	s.mu.Lock()
	s.bins = next
	s.mu.Unlock()
	s.commits.Add(1)
	return nil
}

// Nearby returns bins within radiusKM of p, nearest first. Without a geo
// index it scans the current snapshot.
func (s *Store) Nearby(p geo.Point, radiusKM float64, limit int) ([]geo.Hit, error) {
	if s.geo != nil {
		return s.geo.Nearby(p.Lat, p.Lon, radiusKM, limit)
	}
	hits := make([]geo.Hit, 0)
	for _, b := range s.snapshot() {
		if d := geo.Distance(p, b.Point()); d <= radiusKM {
			hits = append(hits, geo.Hit{ID: b.ID, DistanceKM: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].DistanceKM < hits[j].DistanceKM })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Commits returns the number of committed mutations since start.
func (s *Store) Commits() int64 {
	return s.commits.Load()
}

// Rollbacks returns the number of discarded mutations since start.
func (s *Store) Rollbacks() int64 {
	return s.rollbacks.Load()
}

func checkMutation(prev, next Bin) error {
	if next.ID != prev.ID {
		return fmt.Errorf("%w: bin %d changed id to %d", ErrInvalidTelemetry, prev.ID, next.ID)
	}
	if next.Lat != prev.Lat || next.Lon != prev.Lon {
		return fmt.Errorf("%w: bin %d moved", ErrInvalidTelemetry, prev.ID)
	}
	return validTelemetry(next)
}

func validTelemetry(b Bin) error {
	if b.Fill < 0 || b.Fill > 100 {
		return fmt.Errorf("%w: bin %d fill %d outside [0,100]", ErrInvalidTelemetry, b.ID, b.Fill)
	}
	if b.LastEmptiedDaysAgo < 0 {
		return fmt.Errorf("%w: bin %d elapsed days %d negative", ErrInvalidTelemetry, b.ID, b.LastEmptiedDaysAgo)
	}
	if b.IsHub() && b.Fill != 0 {
		return fmt.Errorf("%w: hub fill must stay 0", ErrInvalidTelemetry)
	}
	return nil
}
