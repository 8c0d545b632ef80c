package api

import (
	"strconv"
	"sync"
	"time"
)

// bucketCounter accumulates cumulative counts for latency buckets (seconds).
type bucketCounter struct {
	mu      sync.Mutex
	buckets map[float64]int64
	total   int64
}

func defaultLatencyBuckets() map[float64]int64 {
	return map[float64]int64{0.005: 0, 0.025: 0, 0.1: 0, 0.5: 0, 1: 0, 5: 0}
}

func newBucketCounter(buckets map[float64]int64) *bucketCounter {
	return &bucketCounter{buckets: buckets}
}

func (c *bucketCounter) observe(d time.Duration) {
	secs := d.Seconds()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	for le := range c.buckets {
		if secs <= le {
			c.buckets[le]++
		}
	}
}

// snapshot keys buckets by their formatted bound so the result encodes as a
// JSON object; "+Inf" holds the request total.
func (c *bucketCounter) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.buckets)+1)
	for le, n := range c.buckets {
		out[strconv.FormatFloat(le, 'g', -1, 64)] = n
	}
	out["+Inf"] = c.total
	return out
}
