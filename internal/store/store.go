// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package store holds the canonical in-memory event cache. It merges three
// update sources: REST snapshots (wholesale replace), push-channel
// participant deltas, and optimistic local mutations. Delta application is
// idempotent and commutative, so any interleaving of poll-derived snapshots
// and push-derived deltas converges to the same membership sets.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/models"
)

// Classifier annotates events entering the store with category labels.
type Classifier interface {
	Classify(title, description string) []string
}

// EventStore is the canonical event cache. Events are created only by
// snapshot replacement (never locally), mutated only through delta
// application, and never deleted between snapshots: an event missing from
// the latest snapshot is simply gone from the new map.
type EventStore struct {
	mu         sync.RWMutex
	events     map[string]*models.Event
	classifier Classifier
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithNowFunc overrides the clock used for status derivation. Tests use
// this to pin "today".
func WithNowFunc(now func() time.Time) Option {
	return func(s *EventStore) { s.nowFunc = now }
}

// New creates an empty store using the given classifier for category
// annotation.
func New(classifier Classifier, opts ...Option) *EventStore {
	s := &EventStore{
		events:     make(map[string]*models.Event),
		classifier: classifier,
		nowFunc:    time.Now,
		logger:     logging.With().Str("component", "store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReplaceSnapshot replaces the whole event set, recomputing the derived
// fields (status, categories, isFull) for every event. Snapshots are
// applied in receipt order; the last received fully supersedes prior
// derived state. Never fails: it is a pure transform of its input.
func (s *EventStore) ReplaceSnapshot(events []models.Event) {
	now := s.nowFunc()
	next := make(map[string]*models.Event, len(events))

	for i := range events {
		e := events[i].Clone()
		if e.ID == "" {
			continue
		}
		if e.Participants == nil {
			e.Participants = make(map[string]struct{})
		}
		if len(e.Categories) == 0 && s.classifier != nil {
			e.Categories = s.classifier.Classify(e.Title, e.Description)
		}
		e.Status = models.DeriveStatus(e.StartDate, e.EndDate, now)
		e.RecomputeFull()
		next[e.ID] = &e
	}

	s.mu.Lock()
	s.events = next
	s.mu.Unlock()

	s.logger.Debug().Int("events", len(next)).Msg("snapshot replaced")
}

// ApplyDelta applies an idempotent membership change and reports whether
// membership actually changed. Joining as a member, leaving as a
// non-member, and unknown event ids are silent no-ops: the event may have
// been filtered out of the last snapshot window.
func (s *EventStore) ApplyDelta(d models.ParticipantDelta) bool {
	if !d.Action.Valid() || d.EventID == "" || d.UserID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[d.EventID]
	if !ok {
		return false
	}

	changed := false
	switch d.Action {
	case models.ActionJoin:
		if !e.HasParticipant(d.UserID) {
			e.Participants[d.UserID] = struct{}{}
			changed = true
		}
	case models.ActionLeave:
		if e.HasParticipant(d.UserID) {
			delete(e.Participants, d.UserID)
			changed = true
		}
	}

	if changed {
		e.RecomputeFull()
	}
	return changed
}

// ApplyOptimistic applies a user-initiated delta ahead of server
// confirmation. Mechanically identical to ApplyDelta; the returned flag
// tells the caller whether a rollback would be needed should the
// confirming call fail. A false return means the delta was a no-op and its
// inverse must not be applied.
func (s *EventStore) ApplyOptimistic(d models.ParticipantDelta) bool {
	applied := s.ApplyDelta(d)
	s.logger.Debug().
		Str("event_id", d.EventID).
		Str("action", string(d.Action)).
		Bool("applied", applied).
		Msg("optimistic delta")
	return applied
}

// Get returns a copy of the event with the given id.
func (s *EventStore) Get(id string) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return models.Event{}, false
	}
	return e.Clone(), true
}

// Len returns the number of cached events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Snapshot returns copies of all cached events ordered by start date,
// ties broken by id.
func (s *EventStore) Snapshot() []models.Event {
	s.mu.RLock()
	out := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sortEvents(out)
	return out
}

// FilterView returns the events matching every non-empty filter: city
// (canonical-key comparison), category label, and derived status.
func (s *EventStore) FilterView(city, category string, status models.EventStatus) []models.Event {
	s.mu.RLock()
	out := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		if city != "" && !models.SameCity(e.City, city) {
			continue
		}
		if category != "" && !e.HasCategory(category) {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sortEvents(out)
	return out
}

// SimilarEvents returns up to limit events related to the given one:
// same-city events first, then events sharing a category, each group in
// start-date order. The event itself is excluded.
func (s *EventStore) SimilarEvents(id string, limit int) []models.Event {
	if limit <= 0 {
		limit = 3
	}

	base, ok := s.Get(id)
	if !ok {
		return nil
	}

	all := s.Snapshot()

	var sameCity, sameCategory []models.Event
	for _, e := range all {
		if e.ID == id {
			continue
		}
		switch {
		case models.SameCity(e.City, base.City):
			sameCity = append(sameCity, e)
		case sharesCategory(&e, &base):
			sameCategory = append(sameCategory, e)
		}
	}

	out := append(sameCity, sameCategory...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sharesCategory(a, b *models.Event) bool {
	for _, c := range a.Categories {
		if b.HasCategory(c) {
			return true
		}
	}
	return false
}

func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartDate.Before(events[j].StartDate)
	})
}
