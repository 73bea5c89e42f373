// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package recommend produces the ranked event list for a (city, category,
// recent-activity) context. The remote ranking service is preferred; when
// it fails or returns nothing usable the engine falls back to a
// deterministic local scoring pass, so recommendations work offline.
package recommend

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
)

// MaxResults bounds every recommendation list.
const MaxResults = 5

// Scoring weights for the local fallback.
const (
	categoryMatchScore = 2
	cityMatchScore     = 1
)

// Ranker is the remote ranking collaborator.
type Ranker interface {
	// Rank returns an ordered list of event ids for the given context and
	// candidates. An empty list means the service had nothing to say.
	Rank(ctx context.Context, req RankRequest) ([]string, error)
}

// RankRequest is the ranking service's request payload.
type RankRequest struct {
	LastEvents []string    `json:"lastEvents"`
	AllEvents  []RankEvent `json:"allEvents"`
	City       string      `json:"city"`
	Interests  string      `json:"interests"`
}

// RankEvent is the candidate slice the ranking service sees.
type RankEvent struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	City       string   `json:"city"`
	Categories []string `json:"categories"`
}

// Engine computes recommendations. Pure given its inputs and the ranker
// outcome; tests substitute the ranker with a stub.
type Engine struct {
	ranker Ranker
	logger zerolog.Logger
}

// NewEngine creates an engine. A nil ranker disables the remote path and
// every request takes the local fallback.
func NewEngine(ranker Ranker) *Engine {
	return &Engine{
		ranker: ranker,
		logger: logging.With().Str("component", "recommend").Logger(),
	}
}

// Recommend returns at most MaxResults events for the context.
//
// With no recent-event history there is nothing to rank against, so the
// first MaxResults events come back unranked without consulting the
// remote service at all.
//
// Remote path: the candidates passed to the ranking service are the events
// in the context city, or all events when the city has no matches. A
// non-empty id list maps back to events in the returned order, unknown ids
// dropped.
//
// Fallback path: each event scores 2 for a category-filter match plus 1
// for a city match, recently seen events are excluded, and the list is
// stably sorted by descending score (ties keep input order).
func (e *Engine) Recommend(ctx context.Context, rc models.RecommendationContext, events []models.Event) []models.Event {
	if len(events) == 0 {
		return nil
	}

	recent := rc.BoundedRecent()
	if len(recent) == 0 {
		metrics.RecommendationRequests.WithLabelValues(metrics.PathUnranked).Inc()
		return truncate(events)
	}

	if ranked, ok := e.tryRemote(ctx, rc, events); ok {
		metrics.RecommendationRequests.WithLabelValues(metrics.PathRemote).Inc()
		return ranked
	}

	scored := e.scoreLocally(rc, events, recent)
	if len(scored) == 0 {
		metrics.RecommendationRequests.WithLabelValues(metrics.PathUnranked).Inc()
		return truncate(events)
	}
	metrics.RecommendationRequests.WithLabelValues(metrics.PathFallback).Inc()
	return scored
}

// tryRemote runs the remote path; ok is false whenever the fallback should
// take over.
func (e *Engine) tryRemote(ctx context.Context, rc models.RecommendationContext, events []models.Event) ([]models.Event, bool) {
	if e.ranker == nil {
		return nil, false
	}

	candidates := cityCandidates(rc.City, events)

	req := RankRequest{
		LastEvents: rc.BoundedRecent(),
		AllEvents:  make([]RankEvent, len(candidates)),
		City:       rc.City,
		Interests:  rc.CategoryFilter,
	}
	for i := range candidates {
		req.AllEvents[i] = RankEvent{
			ID:         candidates[i].ID,
			Title:      candidates[i].Title,
			City:       candidates[i].City,
			Categories: candidates[i].Categories,
		}
	}

	ids, err := e.ranker.Rank(ctx, req)
	if err != nil {
		e.logger.Debug().Err(err).Msg("remote ranking failed, falling back to local scoring")
		return nil, false
	}
	if len(ids) == 0 {
		return nil, false
	}

	byID := make(map[string]*models.Event, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	out := make([]models.Event, 0, MaxResults)
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			continue // the service may rank events outside our window
		}
		out = append(out, *ev)
		if len(out) == MaxResults {
			break
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// scoreLocally is the deterministic fallback ranking.
func (e *Engine) scoreLocally(rc models.RecommendationContext, events []models.Event, recent []string) []models.Event {
	seen := make(map[string]struct{}, len(recent))
	for _, id := range recent {
		seen[id] = struct{}{}
	}

	type scoredEvent struct {
		event models.Event
		score int
	}

	scored := make([]scoredEvent, 0, len(events))
	for i := range events {
		if _, recent := seen[events[i].ID]; recent {
			continue
		}
		score := 0
		if rc.CategoryFilter != "" && events[i].HasCategory(rc.CategoryFilter) {
			score += categoryMatchScore
		}
		if models.SameCity(events[i].City, rc.City) {
			score += cityMatchScore
		}
		scored = append(scored, scoredEvent{event: events[i], score: score})
	}

	// Stable sort: ties keep input order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]models.Event, 0, MaxResults)
	for i := 0; i < len(scored) && i < MaxResults; i++ {
		out = append(out, scored[i].event)
	}
	return out
}

// cityCandidates filters events to the context city, or returns the whole
// set when the city has no matches.
func cityCandidates(city string, events []models.Event) []models.Event {
	matched := make([]models.Event, 0, len(events))
	for i := range events {
		if models.SameCity(events[i].City, city) {
			matched = append(matched, events[i])
		}
	}
	if len(matched) == 0 {
		return events
	}
	return matched
}

func truncate(events []models.Event) []models.Event {
	if len(events) <= MaxResults {
		return events
	}
	return events[:MaxResults]
}
