package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bintracker/internal/geo"
)

var (
	ErrNotFound          = errors.New("bin not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrTransientMutation = errors.New("transient mutation failure")
	ErrInvalidTelemetry  = errors.New("invalid telemetry")
	ErrNoEventLog        = errors.New("collection log not configured")
	ErrCollectInFlight   = errors.New("collect with this key still in progress")
)

type Status string

const (
	StatusOK         Status = "ok"
	StatusNearlyFull Status = "nearly_full"
	StatusFull       Status = "full"
	StatusInactive   Status = "inactive"
)

const (
	HubID   = 0
	HubType = "HUB"
)

// Bin is one receptacle. Status is a cache of the last classification and
// must be recomputed before it is trusted.
type Bin struct {
	ID                 int     `json:"id"`
	Location           string  `json:"location"`
	Type               string  `json:"type"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Fill               int     `json:"fill"`
	LastEmptiedDaysAgo int     `json:"last_emptied_days_ago"`
	Status             Status  `json:"status"`
}

func (b Bin) Point() geo.Point {
	return geo.Point{Lat: b.Lat, Lon: b.Lon}
}

func (b Bin) IsHub() bool {
	return b.ID == HubID
}

// Thresholds drive status classification.
type Thresholds struct {
	Full       int `json:"full"`
	NearlyFull int `json:"nearly_full"`
	Inactive   int `json:"inactive"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Full: 80, NearlyFull: 60, Inactive: 7}
}

// Validate rejects negative thresholds.
func (t Thresholds) Validate() error {
	if t.Full < 0 || t.NearlyFull < 0 || t.Inactive < 0 {
		return fmt.Errorf("%w: thresholds must be non-negative", ErrInvalidRequest)
	}
	return nil
}

const (
	EventFleetTick     = "fleet_tick"
	EventBinsCollected = "bins_collected"
)

// Event is pushed to websocket subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
	Bins      []Bin     `json:"bins,omitempty"`
	Collected []int     `json:"collected,omitempty"`
}

func newEvent(typ string) Event {
	return Event{ID: uuid.NewString(), Type: typ, At: time.Now().UTC()}
}

// CollectionEvent records one accepted collect command.
type CollectionEvent struct {
	ID        string    `json:"id"`
	Requested []int     `json:"requested"`
	Collected []int     `json:"collected"`
	CreatedAt time.Time `json:"createdAt"`
}

// Persistence mirrors committed snapshots to durable storage.
type Persistence interface {
	SaveBins(ctx context.Context, bins []Bin) error
}

type GeoLocator interface {
	Add(binID int, lat, lon float64) error
	Nearby(lat, lon, radiusKM float64, limit int) ([]geo.Hit, error)
}

type EventLogger interface {
	AppendCollection(ctx context.Context, evt CollectionEvent) error
	ListCollections(ctx context.Context, limit, offset int) ([]CollectionEvent, error)
	CountCollections(ctx context.Context) (int, error)
}

// Publisher fans fleet events out to subscribers.
type Publisher interface {
	Publish(evt Event)
}

// Publishers fans an event out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) Publish(evt Event) {
	for _, p := range ps {
		p.Publish(evt)
	}
}
