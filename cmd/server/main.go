package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bintracker/internal/api"
	"bintracker/internal/config"
	"bintracker/internal/fleet"
	"bintracker/internal/geo"
	"bintracker/internal/logging"
	"bintracker/internal/storage"
	"bintracker/internal/stream"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed, err := loadSeed(cfg.SeedPath)
	if err != nil {
		log.WithError(err).Fatal("seed load failed")
	}
	store, err := fleet.NewStore(seed)
	if err != nil {
		log.WithError(err).Fatal("store init failed")
	}
	svc := fleet.NewService(store, log)

	checks := make(map[string]func(context.Context) error)
	var replay fleet.ExpiringReplayStore = fleet.NewReplayCache(cfg.CollectKeyTTL)
	if keys := initPersistence(ctx, cfg, log, store, svc, seed, checks); keys != nil {
		replay = keys
	}
	svc.AttachReplayStore(replay)
	go fleet.PurgeReplayKeys(ctx, replay, cfg.CollectKeyTTL, log)
	initGeo(ctx, cfg, log, store, checks)

	hub := fleet.NewHub(log)
	go hub.Run(ctx)
	publishers := fleet.Publishers{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := stream.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.WithField("brokers", cfg.KafkaBrokers).Info("streaming fleet events to kafka")
	}
	svc.AttachPublisher(publishers)

	sim := fleet.NewSimulator(store, cfg.SimInterval, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), log)
	sim.AttachPublisher(publishers)
	go sim.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replay"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	api.AttachRoutes(r, api.Deps{Service: svc, Store: store, Simulator: sim, Hub: hub, Log: log, ReadyChecks: checks})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "bins": len(seed)}).Info("bin tracker API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
	log.Info("server stopped")
}

func loadSeed(path string) ([]fleet.Bin, error) {
	if path == "" {
		return fleet.DefaultSeed(), nil
	}
	return fleet.LoadSeed(path)
}

// initPersistence attaches the Postgres mirror when DATABASE_URL is set and
// returns the Postgres collect key store. Any failure leaves the store
// memory-only and returns nil.
func initPersistence(ctx context.Context, cfg config.Config, log logrus.FieldLogger, store *fleet.Store, svc *fleet.Service, seed []fleet.Bin, checks map[string]func(context.Context) error) *storage.IdempotencyStore {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, running memory-only")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := storage.DefaultPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Warn("database connection failed, running memory-only")
		return nil
	}
	if err := storage.ApplySchema(ctx, pool); err != nil {
		log.WithError(err).Warn("schema init failed, running memory-only")
		pool.Close()
		return nil
	}
	pg := storage.NewPostgres(pool)
	if err := pg.ReplaceBins(ctx, seed); err != nil {
		log.WithError(err).Warn("bin table reset failed, running memory-only")
		pool.Close()
		return nil
	}
	store.AttachPersistence(pg)
	svc.AttachEventLogger(pg)
	checks["postgres"] = pg.Ping
	log.Info("using PostgreSQL persistence")
	return storage.NewIdempotencyStore(pool, cfg.CollectKeyTTL)
}

// initGeo indexes bins in Redis when REDIS_URL is reachable and falls back to
// the in-process index otherwise.
func initGeo(ctx context.Context, cfg config.Config, log logrus.FieldLogger, store *fleet.Store, checks map[string]func(context.Context) error) {
	var locator fleet.GeoLocator = geo.NewInMemoryGeo()
	if cfg.RedisURL != "" {
		if idx, err := redisIndex(ctx, cfg.RedisURL); err != nil {
			log.WithError(err).Warn("redis unavailable, geo fallback to in-memory")
		} else {
			locator = redisGeoLocator{idx: idx}
			checks["redis"] = idx.Ping
			log.Info("using Redis geo index")
		}
	}
	if err := store.AttachGeo(locator); err != nil {
		log.WithError(err).Warn("geo index load failed, nearby queries scan the store")
	}
}

func redisIndex(ctx context.Context, url string) (*geo.Index, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	idx := geo.NewIndex(client)
	if err := idx.Reset(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

// redisGeoLocator adapts the context-aware Redis index to fleet.GeoLocator.
type redisGeoLocator struct{ idx *geo.Index }

func (r redisGeoLocator) Add(binID int, lat, lon float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.idx.AddBin(ctx, binID, lat, lon)
}

func (r redisGeoLocator) Nearby(lat, lon, radiusKM float64, limit int) ([]geo.Hit, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.idx.Nearby(ctx, lat, lon, radiusKM, limit)
}
