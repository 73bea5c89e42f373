// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package models

import (
	"sort"
	"time"
)

// EventSnapshot is the wire shape of one event in the upstream REST
// snapshot. Derived fields the payload may carry (status, is_full) are
// ignored; they are recomputed locally.
type EventSnapshot struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	ImageURL         string    `json:"image_url"`
	City             string    `json:"city"`
	Categories       []string  `json:"categories,omitempty"`
	MaxParticipants  int       `json:"max_participants"`
	ParticipantIDs   []string  `json:"participant_ids"`
}

// ToEvent converts the wire shape into the canonical Event. Status, IsFull
// and (when the payload carries none) Categories are left for the store to
// derive.
func (s EventSnapshot) ToEvent() Event {
	e := Event{
		ID:               s.ID,
		Title:            s.Title,
		ShortDescription: s.ShortDescription,
		Description:      s.Description,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		ImageURL:         s.ImageURL,
		City:             s.City,
		Categories:       append([]string(nil), s.Categories...),
		MaxParticipants:  s.MaxParticipants,
		Participants:     make(map[string]struct{}, len(s.ParticipantIDs)),
	}
	for _, id := range s.ParticipantIDs {
		if id != "" {
			e.Participants[id] = struct{}{}
		}
	}
	return e
}

// EventPayload is the outbound API shape of an event, with the derived
// fields materialized.
type EventPayload struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ShortDescription string    `json:"short_description,omitempty"`
	Description      string    `json:"description,omitempty"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	ImageURL         string    `json:"image_url,omitempty"`
	City             string    `json:"city"`
	Status           string    `json:"status"`
	Categories       []string  `json:"categories"`
	MaxParticipants  int       `json:"max_participants,omitempty"`
	ParticipantIDs   []string  `json:"participant_ids"`
	ParticipantCount int       `json:"participant_count"`
	IsFull           bool      `json:"is_full"`
}

// NewEventPayload materializes the API shape from a canonical event.
func NewEventPayload(e *Event) EventPayload {
	ids := make([]string, 0, len(e.Participants))
	for id := range e.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return EventPayload{
		ID:               e.ID,
		Title:            e.Title,
		ShortDescription: e.ShortDescription,
		Description:      e.Description,
		StartDate:        e.StartDate,
		EndDate:          e.EndDate,
		ImageURL:         e.ImageURL,
		City:             e.City,
		Status:           string(e.Status),
		Categories:       e.Categories,
		MaxParticipants:  e.MaxParticipants,
		ParticipantIDs:   ids,
		ParticipantCount: len(ids),
		IsFull:           e.IsFull,
	}
}
