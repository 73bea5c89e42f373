// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package location resolves the user's city through a multi-source
// pipeline: geolocation with reverse geocoding, address parsing, IP-based
// lookup, and finally a configured default. Resolved cities persist across
// sessions through the injected storage.Store.
package location

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/avoronkov/eventscope/internal/cache"
	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
	"github.com/avoronkov/eventscope/internal/storage"
)

// Result is the outcome of one resolution pass.
type Result struct {
	City   string                 `json:"city"`
	Method models.DetectionMethod `json:"method"`
}

// Config assembles a Resolver.
type Config struct {
	// GeoSource is the geolocation tier; nil skips straight to IP lookup.
	GeoSource GeoSource

	// Geocoders is the reverse-geocoding chain, tried in order.
	Geocoders []Geocoder

	// IPProviders is the IP-lookup chain, tried in order.
	IPProviders []IPProvider

	// Store persists the resolved city, method, and known-cities set.
	Store storage.Store

	// DefaultCity is the final fallback tier.
	DefaultCity string

	// GeoTimeout bounds the geolocation call. Default 10s.
	GeoTimeout time.Duration
}

// Resolver runs the precedence pipeline. It is safely re-entrant:
// concurrent invocations each run the full pipeline, and a single mutex
// serializes completion writes so only the last-completed result persists.
type Resolver struct {
	geoSource   GeoSource
	geocoders   []Geocoder
	ipProviders []IPProvider
	store       storage.Store
	defaultCity string
	geoTimeout  time.Duration

	// geocodeCache memoizes coordinate->city so repeated resolutions do
	// not re-hit the rate-limited geocoders.
	geocodeCache *cache.LRUCache

	mu          sync.Mutex
	state       models.DetectionState
	city        string
	method      models.DetectionMethod
	knownCities map[string]string // canonical key -> display name

	logger zerolog.Logger
}

// NewResolver creates a resolver from the given configuration.
func NewResolver(cfg Config) *Resolver {
	timeout := cfg.GeoTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Resolver{
		geoSource:    cfg.GeoSource,
		geocoders:    cfg.Geocoders,
		ipProviders:  cfg.IPProviders,
		store:        cfg.Store,
		defaultCity:  cfg.DefaultCity,
		geoTimeout:   timeout,
		geocodeCache: cache.NewLRUCache(256, time.Hour),
		state:        models.DetectionNotTried,
		knownCities:  make(map[string]string),
		logger:       logging.With().Str("component", "location").Logger(),
	}
	if cfg.DefaultCity != "" {
		r.knownCities[models.CityKey(cfg.DefaultCity)] = cfg.DefaultCity
	}
	return r
}

// Seed loads the persisted city and known-cities set so a session starts
// from the previous resolution instead of re-detecting. Returns true when
// a persisted city was found.
func (r *Resolver) Seed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if raw, err := r.store.Get(storage.KeyKnownCities); err == nil {
		var cities []string
		if err := json.Unmarshal(raw, &cities); err != nil {
			r.logger.Warn().Err(err).Msg("corrupt known-cities entry ignored")
		} else {
			for _, c := range cities {
				r.knownCities[models.CityKey(c)] = c
			}
		}
	}

	cityRaw, err := r.store.Get(storage.KeyCity)
	if err != nil {
		return false
	}
	methodRaw, err := r.store.Get(storage.KeyDetectionMethod)
	if err != nil {
		return false
	}

	r.city = string(cityRaw)
	r.method = models.DetectionMethod(methodRaw)
	r.state = models.DetectionSuccess
	r.logger.Info().Str("city", r.city).Str("method", string(r.method)).Msg("seeded from persisted location")
	return true
}

// Resolve runs the precedence pipeline and returns the resolved city.
// It never fails: exhausting every tier yields the configured default.
func (r *Resolver) Resolve(ctx context.Context) Result {
	r.mu.Lock()
	r.state = models.DetectionDetecting
	r.mu.Unlock()

	if city, ok := r.resolveGeolocation(ctx); ok {
		return r.complete(city, models.MethodGeolocation)
	}
	if city, ok := r.resolveIP(ctx); ok {
		return r.complete(city, models.MethodIP)
	}
	return r.completeDefault()
}

// resolveGeolocation is the first precedence tier: position, reverse
// geocode, address parse.
func (r *Resolver) resolveGeolocation(ctx context.Context) (string, bool) {
	if r.geoSource == nil {
		return "", false
	}

	geoCtx, cancel := context.WithTimeout(ctx, r.geoTimeout)
	defer cancel()

	pos, err := r.geoSource.Coordinates(geoCtx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("geolocation unavailable, falling through")
		return "", false
	}

	cacheKey := fmt.Sprintf("%.4f,%.4f", pos.Latitude, pos.Longitude)
	if city, ok := r.geocodeCache.Get(cacheKey); ok {
		return city, true
	}

	for _, g := range r.geocoders {
		if !g.IsAvailable() {
			continue
		}
		address, err := g.ReverseGeocode(geoCtx, pos)
		if err != nil {
			r.logger.Debug().Str("geocoder", g.Name()).Err(err).Msg("reverse geocode failed")
			continue
		}
		if city := ExtractCity(address); city != UnknownCity {
			r.logger.Debug().Str("geocoder", g.Name()).Str("city", city).Msg("city extracted from address")
			r.geocodeCache.Add(cacheKey, city)
			return city, true
		}
		r.logger.Debug().Str("geocoder", g.Name()).Str("address", address).Msg("no city token in address")
	}
	return "", false
}

// resolveIP is the third precedence tier: the IP provider chain.
func (r *Resolver) resolveIP(ctx context.Context) (string, bool) {
	for _, p := range r.ipProviders {
		if !p.IsAvailable() {
			continue
		}
		city, err := p.Lookup(ctx)
		if err != nil {
			r.logger.Debug().Str("provider", p.Name()).Err(err).Msg("IP lookup failed")
			continue
		}
		r.logger.Debug().Str("provider", p.Name()).Str("city", city).Msg("city resolved from IP")
		return city, true
	}
	return "", false
}

// complete records a successful resolution. Writes are serialized under
// the mutex; with concurrent invocations the last completion wins,
// determined by completion order rather than invocation order.
func (r *Resolver) complete(city string, method models.DetectionMethod) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.city = city
	r.method = method
	r.state = models.DetectionSuccess

	if err := r.store.Set(storage.KeyCity, []byte(city)); err != nil {
		r.logger.Warn().Err(err).Msg("failed to persist city")
	}
	if err := r.store.Set(storage.KeyDetectionMethod, []byte(method)); err != nil {
		r.logger.Warn().Err(err).Msg("failed to persist detection method")
	}
	r.appendKnownCityLocked(city)

	metrics.LocationResolutions.WithLabelValues(string(method)).Inc()
	r.logger.Info().Str("city", city).Str("method", string(method)).Msg("location resolved")
	return Result{City: city, Method: method}
}

// completeDefault records tier-four exhaustion: detection failed and the
// configured default city is in effect. The default is not persisted, so
// the next session re-attempts detection.
func (r *Resolver) completeDefault() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.city = r.defaultCity
	r.method = models.MethodDefault
	r.state = models.DetectionFailed

	metrics.LocationResolutions.WithLabelValues(string(models.MethodDefault)).Inc()
	r.logger.Warn().Str("default_city", r.defaultCity).
		Msg("location detection failed on every tier, using default city")
	return Result{City: r.defaultCity, Method: models.MethodDefault}
}

// appendKnownCityLocked adds a novel city to the append-only known set and
// persists it. Caller holds r.mu.
func (r *Resolver) appendKnownCityLocked(city string) {
	key := models.CityKey(city)
	if _, exists := r.knownCities[key]; exists {
		return
	}
	r.knownCities[key] = city

	cities := make([]string, 0, len(r.knownCities))
	for _, name := range r.knownCities {
		cities = append(cities, name)
	}
	sort.Strings(cities)

	raw, err := json.Marshal(cities)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to encode known cities")
		return
	}
	if err := r.store.Set(storage.KeyKnownCities, raw); err != nil {
		r.logger.Warn().Err(err).Msg("failed to persist known cities")
	}
}

// State returns the current detection state.
func (r *Resolver) State() models.DetectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the current city and how it was determined. ok is false
// before any resolution or seed.
func (r *Resolver) Current() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.city == "" {
		return Result{}, false
	}
	return Result{City: r.city, Method: r.method}, true
}

// KnownCities returns the known-cities set, sorted for stable output.
func (r *Resolver) KnownCities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.knownCities))
	for _, name := range r.knownCities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
