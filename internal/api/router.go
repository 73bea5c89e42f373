// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avoronkov/eventscope/internal/location"
	"github.com/avoronkov/eventscope/internal/models"
)

// EventSource is the read side of the event store.
type EventSource interface {
	Get(id string) (models.Event, bool)
	FilterView(city, category string, status models.EventStatus) []models.Event
	SimilarEvents(id string, limit int) []models.Event
	Snapshot() []models.Event
}

// Mutator performs the optimistic join/leave flow.
type Mutator interface {
	JoinEvent(ctx context.Context, eventID, userID string) error
	LeaveEvent(ctx context.Context, eventID, userID string) error
}

// Recommender produces ranked event lists.
type Recommender interface {
	Recommend(ctx context.Context, rc models.RecommendationContext, events []models.Event) []models.Event
}

// Locator is the location pipeline surface.
type Locator interface {
	Current() (location.Result, bool)
	Resolve(ctx context.Context) location.Result
	KnownCities() []string
}

// Router wires the HTTP surface to the engine components.
type Router struct {
	events     EventSource
	mutator    Mutator
	recommend  Recommender
	locator    Locator
	middleware *Middleware

	// defaultUserID identifies this client when a mutation body omits
	// user_id.
	defaultUserID string
}

// NewRouter creates a Router over the given collaborators.
func NewRouter(events EventSource, mutator Mutator, recommend Recommender, locator Locator, mw *Middleware, defaultUserID string) *Router {
	return &Router{
		events:        events,
		mutator:       mutator,
		recommend:     recommend,
		locator:       locator,
		middleware:    mw,
		defaultUserID: defaultUserID,
	}
}

// Setup builds the Chi handler tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())

		r.Route("/events", func(r chi.Router) {
			r.Get("/", router.listEvents)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", router.getEvent)
				r.Get("/similar", router.similarEvents)
				r.Post("/join", router.joinEvent)
				r.Post("/leave", router.leaveEvent)
			})
		})

		r.Get("/recommendations", router.recommendations)

		r.Route("/location", func(r chi.Router) {
			r.Get("/", router.currentLocation)
			r.Post("/detect", router.detectLocation)
		})

		r.Get("/cities", router.knownCities)
	})

	r.Get("/healthz", router.health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
