// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package main is the entry point for the Eventscope engine.
//
// Eventscope keeps a local cache of events synchronized with a remote
// backend and serves it over a REST API. Components start in this order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml,
//     environment variables with the EVENTSCOPE_ prefix)
//  2. Storage: Badger key-value store for the persisted session state
//     (resolved city, known cities, local user id)
//  3. Location: multi-source city resolution pipeline
//  4. Sync: snapshot polling plus the WebSocket delta stream, both behind
//     a circuit breaker
//  5. HTTP server: Chi REST API with Prometheus metrics
//
// The sync scheduler and the HTTP server run under a suture supervisor
// tree, so a crashing sync loop restarts with backoff while the API keeps
// serving the cached store.
//
// Graceful shutdown on SIGINT and SIGTERM: stop accepting connections,
// drain in-flight requests, stop the scheduler, close the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/eventscope/internal/api"
	"github.com/avoronkov/eventscope/internal/classify"
	"github.com/avoronkov/eventscope/internal/config"
	"github.com/avoronkov/eventscope/internal/location"
	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/recommend"
	"github.com/avoronkov/eventscope/internal/storage"
	"github.com/avoronkov/eventscope/internal/store"
	"github.com/avoronkov/eventscope/internal/supervisor"
	"github.com/avoronkov/eventscope/internal/supervisor/services"
	enginesync "github.com/avoronkov/eventscope/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("backend_url", cfg.Backend.URL).
		Str("default_city", cfg.Location.DefaultCity).
		Dur("poll_interval", cfg.Backend.PollInterval).
		Msg("Starting Eventscope engine")

	kv, err := openStorage(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	userID, err := loadOrCreateUserID(kv)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to establish local user id")
	}
	logging.Info().Str("user_id", userID).Msg("Local user identity ready")

	eventStore := store.New(classify.New())

	resolver := newLocationResolver(cfg, kv)
	if resolver.Seed() {
		logging.Info().Msg("Location seeded from previous session")
	} else {
		// First run: resolve in the background so startup is not blocked
		// on the geocoder chain.
		go resolver.Resolve(context.Background())
	}

	var ranker recommend.Ranker
	if cfg.Ranking.Enabled {
		ranker = recommend.NewHTTPRanker(cfg.Ranking.URL, cfg.Ranking.Timeout)
		logging.Info().Str("url", cfg.Ranking.URL).Msg("Remote ranking enabled")
	} else {
		logging.Info().Msg("Remote ranking disabled, using local fallback ordering")
	}
	engine := recommend.NewEngine(ranker)

	backend := enginesync.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	push := enginesync.NewPushClient(cfg.Backend.WSURL)
	scheduler := enginesync.NewScheduler(backend, push, eventStore, cfg.Backend.PollInterval)

	mw := api.NewMiddleware(api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	router := api.NewRouter(eventStore, scheduler, engine, resolver, mw, userID)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSchedulerService(scheduler))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	logging.Info().Msg("Engine stopped gracefully")
}

// openStorage opens the configured persistence backend.
func openStorage(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.InMemory {
		logging.Warn().Msg("In-memory storage enabled, session state will not survive restarts")
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenBadger(cfg.Storage.Dir)
}

// loadOrCreateUserID returns the persisted local user id, generating and
// persisting a fresh one on first run. The id identifies this installation
// in join/leave calls when the caller does not supply its own.
func loadOrCreateUserID(kv storage.Store) (string, error) {
	raw, err := kv.Get(storage.KeyUserID)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return "", err
	}

	id := uuid.NewString()
	if err := kv.Set(storage.KeyUserID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	return id, nil
}

// newLocationResolver assembles the resolution pipeline from the
// configuration: static coordinates when provided, then the geocoder
// chain, then IP lookup, then the default city.
func newLocationResolver(cfg *config.Config, kv storage.Store) *location.Resolver {
	var geoSource location.GeoSource
	if cfg.Location.HasCoordinates() {
		geoSource = location.NewStaticGeoSource(cfg.Location.Latitude, cfg.Location.Longitude)
		logging.Info().
			Float64("latitude", cfg.Location.Latitude).
			Float64("longitude", cfg.Location.Longitude).
			Msg("Static coordinates configured")
	}

	var geocoders []location.Geocoder
	if cfg.Location.YandexAPIKey != "" {
		geocoders = append(geocoders, location.NewYandexGeocoder(cfg.Location.YandexAPIKey))
	}
	geocoders = append(geocoders, location.NewNominatimGeocoder(cfg.Location.NominatimUserAgent))

	var ipProviders []location.IPProvider
	if cfg.Location.IPLookupEnabled {
		ipProviders = []location.IPProvider{
			location.NewIPAPIProvider(),
			location.NewIPAPICoProvider(),
		}
	}

	return location.NewResolver(location.Config{
		GeoSource:   geoSource,
		Geocoders:   geocoders,
		IPProviders: ipProviders,
		Store:       kv,
		DefaultCity: cfg.Location.DefaultCity,
		GeoTimeout:  cfg.Location.GeoTimeout,
	})
}
