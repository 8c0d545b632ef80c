package fleet

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSimInterval = 30 * time.Second

// Simulator emulates telemetry arrival: every tick each non-hub bin gets a
// fresh random fill level and may age by one day.
type Simulator struct {
	store     *Store
	interval  time.Duration
	rng       *rand.Rand
	log       logrus.FieldLogger
	publisher Publisher

	ticks    atomic.Int64
	failures atomic.Int64
}

// NewSimulator wires a simulator. The rng is only touched while the store's
// mutation lock is held.
func NewSimulator(store *Store, interval time.Duration, rng *rand.Rand, log logrus.FieldLogger) *Simulator {
	if interval <= 0 {
		interval = DefaultSimInterval
	}
	return &Simulator{
		store:    store,
		interval: interval,
		rng:      rng,
		log:      log.WithField("component", "simulator"),
	}
}

// AttachPublisher sends a fleet_tick event after every committed tick.
func (s *Simulator) AttachPublisher(p Publisher) {
	s.publisher = p
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("fill simulator started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("fill simulator stopped")
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *Simulator) step(ctx context.Context) {
	start := time.Now()
	if err := s.Tick(ctx); err != nil {
		s.failures.Add(1)
		s.log.WithError(err).Warn("fill simulation tick discarded")
		return
	}
	s.ticks.Add(1)
	s.log.WithField("latency_ms", float64(time.Since(start).Microseconds())/1000).Debug("fill simulation tick committed")

	if s.publisher != nil {
		evt := newEvent(EventFleetTick)
		evt.Bins = ClassifyAll(s.store.List(), DefaultThresholds())
		s.publisher.Publish(evt)
	}
}

// Tick applies one round of simulated telemetry. A panic inside the mutation
// is reported as ErrTransientMutation; the store keeps its previous snapshot.
func (s *Simulator) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tick panicked: %v", ErrTransientMutation, r)
		}
	}()
	return s.store.ApplyBulkMutation(ctx, s.randomize)
}

func (s *Simulator) randomize(b Bin) (Bin, error) {
	if b.IsHub() {
		return b, nil
	}
	b.Fill = s.rng.IntN(101)
	b.LastEmptiedDaysAgo += s.rng.IntN(2)
	return b, nil
}

// Ticks returns committed ticks since start.
func (s *Simulator) Ticks() int64 {
	return s.ticks.Load()
}

// Failures returns discarded ticks since start.
func (s *Simulator) Failures() int64 {
	return s.failures.Load()
}
