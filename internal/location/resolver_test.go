// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package location

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/avoronkov/eventscope/internal/models"
	"github.com/avoronkov/eventscope/internal/storage"
)

type fakeGeoSource struct {
	pos models.Coordinates
	err error
}

func (f *fakeGeoSource) Coordinates(context.Context) (models.Coordinates, error) {
	return f.pos, f.err
}

type fakeGeocoder struct {
	name      string
	address   string
	err       error
	available bool
	calls     int
}

func (f *fakeGeocoder) ReverseGeocode(context.Context, models.Coordinates) (string, error) {
	f.calls++
	return f.address, f.err
}
func (f *fakeGeocoder) Name() string      { return f.name }
func (f *fakeGeocoder) IsAvailable() bool { return f.available }

type fakeIPProvider struct {
	name  string
	city  string
	err   error
	calls int
}

func (f *fakeIPProvider) Lookup(context.Context) (string, error) {
	f.calls++
	return f.city, f.err
}
func (f *fakeIPProvider) Name() string      { return f.name }
func (f *fakeIPProvider) IsAvailable() bool { return true }

func TestResolver_GeolocationTierWins(t *testing.T) {
	store := storage.NewMemoryStore()
	ip := &fakeIPProvider{name: "ip", city: "Москва"}
	r := NewResolver(Config{
		GeoSource:   &fakeGeoSource{pos: models.Coordinates{Latitude: 47.22, Longitude: 39.72}},
		Geocoders:   []Geocoder{&fakeGeocoder{name: "g", address: "Ростов-на-Дону, ул. Садовая, 1", available: true}},
		IPProviders: []IPProvider{ip},
		Store:       store,
		DefaultCity: "Ростов",
	})

	got := r.Resolve(context.Background())
	if got.City != "Ростов-на-Дону" || got.Method != models.MethodGeolocation {
		t.Fatalf("Resolve = %+v, want Ростов-на-Дону via geolocation", got)
	}
	if ip.calls != 0 {
		t.Error("IP tier must not run when geolocation succeeds")
	}
	if r.State() != models.DetectionSuccess {
		t.Errorf("state = %v, want success", r.State())
	}

	// Persisted for the next session.
	city, err := store.Get(storage.KeyCity)
	if err != nil || string(city) != "Ростов-на-Дону" {
		t.Errorf("persisted city = %q (%v), want Ростов-на-Дону", city, err)
	}
	method, _ := store.Get(storage.KeyDetectionMethod)
	if string(method) != "geolocation" {
		t.Errorf("persisted method = %q, want geolocation", method)
	}
}

func TestResolver_FallsThroughToIP(t *testing.T) {
	tests := []struct {
		name     string
		source   GeoSource
		geocoder *fakeGeocoder
	}{
		{
			name:     "geolocation unavailable",
			source:   &fakeGeoSource{err: ErrNoCoordinates},
			geocoder: &fakeGeocoder{name: "g", address: "Ростов", available: true},
		},
		{
			name:     "geocoder fails",
			source:   &fakeGeoSource{},
			geocoder: &fakeGeocoder{name: "g", err: errors.New("boom"), available: true},
		},
		{
			name:     "address yields no city",
			source:   &fakeGeoSource{},
			geocoder: &fakeGeocoder{name: "g", address: "ул. Ленина, д. 5", available: true},
		},
		{
			name:     "geocoder not available",
			source:   &fakeGeoSource{},
			geocoder: &fakeGeocoder{name: "g", address: "Ростов", available: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Config{
				GeoSource:   tt.source,
				Geocoders:   []Geocoder{tt.geocoder},
				IPProviders: []IPProvider{&fakeIPProvider{name: "ip", city: "Казань"}},
				Store:       storage.NewMemoryStore(),
				DefaultCity: "Ростов",
			})

			got := r.Resolve(context.Background())
			if got.City != "Казань" || got.Method != models.MethodIP {
				t.Errorf("Resolve = %+v, want Казань via ip", got)
			}
		})
	}
}

func TestResolver_IPChainFallsThrough(t *testing.T) {
	first := &fakeIPProvider{name: "a", err: errors.New("down")}
	second := &fakeIPProvider{name: "b", city: "Казань"}

	r := NewResolver(Config{
		IPProviders: []IPProvider{first, second},
		Store:       storage.NewMemoryStore(),
		DefaultCity: "Ростов",
	})

	got := r.Resolve(context.Background())
	if got.City != "Казань" {
		t.Errorf("Resolve = %+v, want second provider's city", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("provider calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestResolver_DefaultTier(t *testing.T) {
	store := storage.NewMemoryStore()
	r := NewResolver(Config{
		GeoSource:   &fakeGeoSource{err: ErrNoCoordinates},
		IPProviders: []IPProvider{&fakeIPProvider{name: "ip", err: errors.New("down")}},
		Store:       store,
		DefaultCity: "Ростов",
	})

	got := r.Resolve(context.Background())
	if got.City != "Ростов" || got.Method != models.MethodDefault {
		t.Fatalf("Resolve = %+v, want default Ростов", got)
	}
	if r.State() != models.DetectionFailed {
		t.Errorf("state = %v, want failed", r.State())
	}

	// The default tier must not persist: next session re-detects.
	if _, err := store.Get(storage.KeyCity); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("default city must not be persisted, Get err = %v", err)
	}
}

func TestResolver_Seed(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Set(storage.KeyCity, []byte("Казань")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(storage.KeyDetectionMethod, []byte("ip")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(storage.KeyKnownCities, []byte(`["Казань","Москва"]`)); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(Config{Store: store, DefaultCity: "Ростов"})
	if !r.Seed() {
		t.Fatal("Seed should report a persisted city")
	}

	cur, ok := r.Current()
	if !ok || cur.City != "Казань" || cur.Method != models.MethodIP {
		t.Errorf("Current = %+v (%v), want seeded Казань via ip", cur, ok)
	}
	if r.State() != models.DetectionSuccess {
		t.Errorf("state after seed = %v, want success", r.State())
	}

	known := r.KnownCities()
	if len(known) != 3 { // Казань, Москва + default Ростов
		t.Errorf("known cities = %v, want 3 entries", known)
	}
}

func TestResolver_Seed_EmptyStore(t *testing.T) {
	r := NewResolver(Config{Store: storage.NewMemoryStore(), DefaultCity: "Ростов"})
	if r.Seed() {
		t.Error("Seed on empty store should report false")
	}
	if _, ok := r.Current(); ok {
		t.Error("Current should report false before any resolution")
	}
}

func TestResolver_KnownCitiesAppendOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := &fakeIPProvider{name: "ip", city: "Казань"}
	r := NewResolver(Config{
		IPProviders: []IPProvider{provider},
		Store:       store,
		DefaultCity: "Ростов",
	})

	r.Resolve(context.Background())
	provider.city = "казань" // same city, different case: no new entry
	r.Resolve(context.Background())
	provider.city = "Москва"
	r.Resolve(context.Background())

	known := r.KnownCities()
	if len(known) != 3 {
		t.Errorf("known cities = %v, want [Казань Москва Ростов]", known)
	}
}

// Concurrent invocations must serialize completion writes: the persisted
// state is always one coherent (city, method) pair.
func TestResolver_ConcurrentResolve(t *testing.T) {
	store := storage.NewMemoryStore()
	r := NewResolver(Config{
		IPProviders: []IPProvider{&fakeIPProvider{name: "ip", city: "Казань"}},
		Store:       store,
		DefaultCity: "Ростов",
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background())
		}()
	}
	wg.Wait()

	cur, ok := r.Current()
	if !ok || cur.City != "Казань" || cur.Method != models.MethodIP {
		t.Errorf("Current after concurrent resolves = %+v (%v)", cur, ok)
	}
	city, _ := store.Get(storage.KeyCity)
	method, _ := store.Get(storage.KeyDetectionMethod)
	if string(city) != "Казань" || string(method) != "ip" {
		t.Errorf("persisted pair = (%q, %q), want coherent (Казань, ip)", city, method)
	}
}
