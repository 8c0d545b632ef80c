package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReplayStore remembers the outcome of a keyed collect request so a retried
// request does not reset, log or broadcast the collection twice.
//
// Reserve claims key atomically. When the key is already held it reports
// claimed=false with the remembered result, or ErrCollectInFlight while the
// first request is still running. A claimed key is finished with Complete or
// given up with Release.
type ReplayStore interface {
	Reserve(ctx context.Context, key string) (collected []int, claimed bool, err error)
	Complete(ctx context.Context, key string, collected []int) error
	Release(ctx context.Context, key string) error
}

// ExpiringReplayStore is a ReplayStore whose expired keys are dropped by Purge.
type ExpiringReplayStore interface {
	ReplayStore
	Purge(ctx context.Context) (int64, error)
}

// PurgeReplayKeys calls Purge every interval until ctx is done.
func PurgeReplayKeys(ctx context.Context, store ExpiringReplayStore, every time.Duration, log logrus.FieldLogger) {
	if every <= 0 {
		every = 30 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				log.WithError(err).Warn("collect key purge failed")
				continue
			}
			if n > 0 {
				log.WithField("removed", n).Debug("expired collect keys purged")
			}
		}
	}
}

type replayEntry struct {
	collected []int
	done      bool
	expiry    time.Time
}

// ReplayCache is the in-process ReplayStore.
type ReplayCache struct {
	mu    sync.Mutex
	byKey map[string]replayEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewReplayCache(ttl time.Duration) *ReplayCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ReplayCache{byKey: make(map[string]replayEntry), ttl: ttl, now: time.Now}
}

func (c *ReplayCache) Reserve(_ context.Context, key string) ([]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if entry, ok := c.byKey[key]; ok && now.Before(entry.expiry) {
		if !entry.done {
			return nil, false, ErrCollectInFlight
		}
		return append([]int(nil), entry.collected...), false, nil
	}
	c.byKey[key] = replayEntry{expiry: now.Add(c.ttl)}
	return nil, true, nil
}

func (c *ReplayCache) Complete(_ context.Context, key string, collected []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[key] = replayEntry{
		collected: append([]int(nil), collected...),
		done:      true,
		expiry:    c.now().Add(c.ttl),
	}
	return nil
}

func (c *ReplayCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byKey[key]; ok && !entry.done {
		delete(c.byKey, key)
	}
	return nil
}

// Purge drops expired keys and reports how many were removed.
func (c *ReplayCache) Purge(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var n int64
	for key, entry := range c.byKey {
		if !now.Before(entry.expiry) {
			delete(c.byKey, key)
			n++
		}
	}
	return n, nil
}
