package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bintracker/internal/logging"
)

// Collection truck: polls the optimized route and empties every stop on it.
type routeResponse struct {
	Path       [][2]float64 `json:"path"`
	Stops      []int        `json:"stops"`
	DistanceKM float64      `json:"distance_km"`
}

type collectPayload struct {
	BinIDs []int `json:"bin_ids"`
}

type collectResponse struct {
	Message       string `json:"message"`
	CollectedBins []int  `json:"collected_bins"`
}

func main() {
	api := flag.String("api", "http://localhost:8080", "API base URL")
	interval := flag.Duration("interval", 10*time.Second, "time between runs")
	runs := flag.Int("runs", 0, "number of runs (0 runs until interrupted)")
	truck := flag.String("truck", "truck-1", "truck name used in idempotency keys")
	flag.Parse()

	log := logging.New(os.Getenv("LOG_LEVEL"), "text").WithField("truck", *truck)
	client := &http.Client{Timeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for i := 1; *runs == 0 || i <= *runs; i++ {
		if err := runOnce(ctx, client, *api, fmt.Sprintf("%s-%s", *truck, uuid.NewString()), log); err != nil {
			log.WithError(err).WithField("run", i).Warn("collection run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, client *http.Client, api, key string, log logrus.FieldLogger) error {
	var route routeResponse
	if err := getJSON(ctx, client, api+"/api/optimized_route", &route); err != nil {
		return fmt.Errorf("fetch route: %w", err)
	}
	if len(route.Stops) == 0 {
		log.Info("no bins due")
		return nil
	}
	log.WithFields(logrus.Fields{"stops": route.Stops, "distance_km": route.DistanceKM}).Info("route planned")

	collected, err := collect(ctx, client, api, key, route.Stops)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	log.WithField("collected", collected).Info("bins emptied")
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// collect retries once with the same idempotency key so a lost response does
// not log the collection twice.
func collect(ctx context.Context, client *http.Client, api, key string, ids []int) ([]int, error) {
	body, _ := json.Marshal(collectPayload{BinIDs: ids})
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/collect", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		var res collectResponse
		err = json.NewDecoder(resp.Body).Decode(&res)
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("status %s", resp.Status)
			continue
		}
		if err != nil {
			return nil, err
		}
		return res.CollectedBins, nil
	}
	return nil, lastErr
}
