package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand/v2"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"bintracker/internal/config"
	"bintracker/internal/fleet"
	"bintracker/internal/logging"
	"bintracker/internal/storage"
)

// Seed script: writes a randomized bin fixture for BINS_SEED_PATH and can push
// it straight into the Postgres bin table.
func main() {
	out := flag.String("out", "bins.json", "fixture output path")
	count := flag.Int("count", 20, "number of bins (hub excluded)")
	seed := flag.Uint64("seed", 0, "rng seed (0 picks one from the clock)")
	lat := flag.Float64("lat", fleet.FixtureCenterLat, "center latitude")
	lon := flag.Float64("lon", fleet.FixtureCenterLon, "center longitude")
	pushDB := flag.Bool("db", false, "also replace the bins table at DATABASE_URL")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, "text")

	if *count < 1 {
		log.Fatal("count must be positive")
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(*seed, 0))
	bins := append([]fleet.Bin{fleet.DefaultHub()}, fleet.GenerateFixture(rng, *count, *lat, *lon)...)

	raw, err := json.MarshalIndent(bins, "", "  ")
	if err != nil {
		log.WithError(err).Fatal("encode fixture")
	}
	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		log.WithError(err).Fatal("write fixture")
	}
	log.WithFields(logrus.Fields{"path": *out, "bins": len(bins), "seed": *seed}).Info("fixture written")

	if !*pushDB {
		return
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("-db requires DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := storage.DefaultPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	if err := storage.ApplySchema(ctx, pool); err != nil {
		log.WithError(err).Fatal("schema apply failed")
	}
	pg := storage.NewPostgres(pool)
	if err := pg.ReplaceBins(ctx, bins); err != nil {
		log.WithError(err).Fatal("bin table replace failed")
	}
	stored, err := pg.LoadBins(ctx)
	if err != nil {
		log.WithError(err).Fatal("bin table read back failed")
	}
	if len(stored) != len(bins) {
		log.WithFields(logrus.Fields{"written": len(bins), "stored": len(stored)}).Fatal("bin table count mismatch")
	}
	log.WithField("bins", len(stored)).Info("bins table replaced")
}
