// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/avoronkov/eventscope/internal/models"
	enginesync "github.com/avoronkov/eventscope/internal/sync"
)

// listEvents handles GET /api/v1/events with optional city, category and
// status filters.
func (router *Router) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.EventStatus(q.Get("status"))
	switch status {
	case "", models.StatusActive, models.StatusUpcoming, models.StatusPast:
	default:
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	events := router.events.FilterView(q.Get("city"), q.Get("category"), status)
	respondJSON(w, http.StatusOK, eventPayloads(events))
}

// getEvent handles GET /api/v1/events/{id}.
func (router *Router) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := router.events.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	respondJSON(w, http.StatusOK, models.NewEventPayload(&e))
}

// similarEvents handles GET /api/v1/events/{id}/similar.
func (router *Router) similarEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := router.events.Get(id); !ok {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	limit := 3
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 20 {
			respondError(w, http.StatusBadRequest, "limit must be an integer between 1 and 20")
			return
		}
		limit = n
	}

	respondJSON(w, http.StatusOK, eventPayloads(router.events.SimilarEvents(id, limit)))
}

// mutationRequest is the join/leave body.
type mutationRequest struct {
	UserID string `json:"user_id"`
}

func (router *Router) joinEvent(w http.ResponseWriter, r *http.Request) {
	router.mutateEvent(w, r, router.mutator.JoinEvent)
}

func (router *Router) leaveEvent(w http.ResponseWriter, r *http.Request) {
	router.mutateEvent(w, r, router.mutator.LeaveEvent)
}

// mutateEvent runs the optimistic join/leave flow. A backend rejection
// maps to 409 after the engine has already rolled the optimistic delta
// back; any other backend failure maps to 502.
func (router *Router) mutateEvent(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, eventID, userID string) error) {
	id := chi.URLParam(r, "id")
	if _, ok := router.events.Get(id); !ok {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	var req mutationRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = router.defaultUserID
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := op(r.Context(), id, userID); err != nil {
		if errors.Is(err, enginesync.ErrMutationRejected) {
			respondError(w, http.StatusConflict, "mutation rejected by backend")
			return
		}
		respondError(w, http.StatusBadGateway, "backend unavailable")
		return
	}

	e, _ := router.events.Get(id)
	respondJSON(w, http.StatusOK, models.NewEventPayload(&e))
}

// recommendations handles GET /api/v1/recommendations. The context city
// comes from the location pipeline; category and recent history from
// query params.
func (router *Router) recommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	city := ""
	if res, ok := router.locator.Current(); ok {
		city = res.City
	}

	rc := models.RecommendationContext{
		City:           city,
		CategoryFilter: q.Get("category"),
		RecentEventIDs: splitCommaList(q.Get("recent")),
	}

	recommended := router.recommend.Recommend(r.Context(), rc, router.events.Snapshot())
	respondJSON(w, http.StatusOK, eventPayloads(recommended))
}

// locationResponse is the GET /api/v1/location body.
type locationResponse struct {
	City     string `json:"city"`
	Method   string `json:"method"`
	Resolved bool   `json:"resolved"`
}

func (router *Router) currentLocation(w http.ResponseWriter, _ *http.Request) {
	res, ok := router.locator.Current()
	respondJSON(w, http.StatusOK, locationResponse{
		City:     res.City,
		Method:   string(res.Method),
		Resolved: ok,
	})
}

// detectLocation handles POST /api/v1/location/detect by running a full
// resolution pass. Resolution never fails; the worst case is the
// configured default city.
func (router *Router) detectLocation(w http.ResponseWriter, r *http.Request) {
	res := router.locator.Resolve(r.Context())
	respondJSON(w, http.StatusOK, locationResponse{
		City:     res.City,
		Method:   string(res.Method),
		Resolved: true,
	})
}

func (router *Router) knownCities(w http.ResponseWriter, _ *http.Request) {
	cities := router.locator.KnownCities()
	if cities == nil {
		cities = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"cities": cities})
}

func (router *Router) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func eventPayloads(events []models.Event) []models.EventPayload {
	out := make([]models.EventPayload, len(events))
	for i := range events {
		out[i] = models.NewEventPayload(&events[i])
	}
	return out
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
