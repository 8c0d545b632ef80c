package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bintracker/internal/fleet"
	"bintracker/internal/logging"
)

// Smoke check against a running server: reads, a collect, and the matching
// websocket event.
func main() {
	api := envOrDefault("API_BASE", "http://localhost:8080")
	wsBase := envOrDefault("WS_BASE", "ws://localhost:8080")
	log := logging.New(os.Getenv("LOG_LEVEL"), "text")

	fmt.Println("Checking health...")
	if err := expectStatus(api+"/health", http.StatusOK); err != nil {
		log.WithError(err).Fatal("health failed")
	}

	fmt.Println("Listing bins...")
	var bins []fleet.Bin
	if err := getJSON(api+"/api/bins", &bins); err != nil {
		log.WithError(err).Fatal("list bins failed")
	}
	if len(bins) < 2 || !bins[0].IsHub() {
		log.WithField("bins", len(bins)).Fatal("unexpected bin list")
	}
	target := bins[1].ID

	if err := expectStatus(fmt.Sprintf("%s/api/bin/%d", api, target), http.StatusOK); err != nil {
		log.WithError(err).Fatal("get bin failed")
	}
	if err := expectStatus(api+"/api/bin/999999", http.StatusNotFound); err != nil {
		log.WithError(err).Fatal("unknown bin check failed")
	}

	fmt.Println("Fetching route...")
	var route map[string]any
	if err := getJSON(api+"/api/optimized_route", &route); err != nil {
		log.WithError(err).Fatal("route failed")
	}
	fmt.Printf("Route distance: %v km\n", route["distance_km"])

	events := make(chan fleet.Event, 16)
	conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/fleet", nil)
	if err != nil {
		log.WithError(err).Fatal("ws dial failed")
	}
	defer conn.Close()
	go subscribe(conn, events, log)
	// let the hub register the subscriber
	time.Sleep(200 * time.Millisecond)

	fmt.Printf("Collecting bin %d...\n", target)
	collected, err := collect(api, []int{target, 999999})
	if err != nil {
		log.WithError(err).Fatal("collect failed")
	}
	if len(collected) != 1 || collected[0] != target {
		log.WithField("collected", collected).Fatal("unexpected collect result")
	}

	waitForCollect(events, target, log)
	fmt.Println("Smoke test complete.")
}

func expectStatus(url string, want int) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return fmt.Errorf("%s: status %s, want %d", url, resp.Status, want)
	}
	return nil
}

func getJSON(url string, dst any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func collect(api string, ids []int) ([]int, error) {
	body, _ := json.Marshal(map[string][]int{"bin_ids": ids})
	resp, err := http.Post(api+"/api/collect", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	var res struct {
		CollectedBins []int `json:"collected_bins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return res.CollectedBins, nil
}

func subscribe(conn *websocket.Conn, sink chan<- fleet.Event, log logrus.FieldLogger) {
	for {
		var evt fleet.Event
		if err := conn.ReadJSON(&evt); err != nil {
			log.WithError(err).Debug("ws closed")
			return
		}
		sink <- evt
	}
}

func waitForCollect(events <-chan fleet.Event, binID int, log logrus.FieldLogger) {
	timeout := time.After(8 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Type != fleet.EventBinsCollected {
				continue
			}
			for _, id := range evt.Collected {
				if id == binID {
					fmt.Printf("WS event received: %s %v\n", evt.Type, evt.Collected)
					return
				}
			}
		case <-timeout:
			log.WithField("bin", binID).Fatal("bins_collected event not received")
		}
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
