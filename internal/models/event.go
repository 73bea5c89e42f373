// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package models defines the core domain types shared across Eventscope:
// events, participant deltas, location detection state, and the
// recommendation context.
package models

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle phase of an event, derived from its dates
// at day granularity. It is never stored; callers recompute it from
// StartDate/EndDate against the current day.
type EventStatus string

const (
	StatusPast     EventStatus = "past"
	StatusUpcoming EventStatus = "upcoming"
	StatusActive   EventStatus = "active"
)

// DefaultCategory is assigned when no classification rule matches.
const DefaultCategory = "other"

// Event is the canonical in-memory representation of an event.
//
// Participants is the source of truth for the participant count; IsFull and
// Status are derived fields recomputed on every mutation, never trusted from
// upstream payloads.
type Event struct {
	ID               string
	Title            string
	ShortDescription string
	Description      string
	StartDate        time.Time
	EndDate          time.Time
	ImageURL         string
	City             string
	Status           EventStatus
	Categories       []string
	MaxParticipants  int // 0 means unbounded
	Participants     map[string]struct{}
	IsFull           bool
}

// ParticipantCount returns the number of current participants.
func (e *Event) ParticipantCount() int {
	return len(e.Participants)
}

// HasParticipant reports whether the user is a current participant.
func (e *Event) HasParticipant(userID string) bool {
	_, ok := e.Participants[userID]
	return ok
}

// RecomputeFull updates IsFull from the participant set and the bound.
// An event with no bound is never full.
func (e *Event) RecomputeFull() {
	e.IsFull = e.MaxParticipants > 0 && len(e.Participants) >= e.MaxParticipants
}

// Clone returns a deep copy safe for callers to retain or mutate.
func (e *Event) Clone() Event {
	out := *e
	out.Categories = append([]string(nil), e.Categories...)
	out.Participants = make(map[string]struct{}, len(e.Participants))
	for id := range e.Participants {
		out.Participants[id] = struct{}{}
	}
	return out
}

// HasCategory reports whether the event carries the given category label.
func (e *Event) HasCategory(category string) bool {
	for _, c := range e.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// DeriveStatus computes the event status at day granularity: past if the
// end day is before today, upcoming if the start day is after today,
// otherwise active. An event with a zero EndDate is treated as ending on
// its start day.
func DeriveStatus(start, end, now time.Time) EventStatus {
	if end.IsZero() {
		end = start
	}
	today := dayOf(now)
	if dayOf(end).Before(today) {
		return StatusPast
	}
	if dayOf(start).After(today) {
		return StatusUpcoming
	}
	return StatusActive
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CityKey returns the canonical comparison key for a city display name.
// Cities compare equal when their keys are equal.
func CityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameCity reports whether two city display names refer to the same city.
func SameCity(a, b string) bool {
	return CityKey(a) == CityKey(b)
}
