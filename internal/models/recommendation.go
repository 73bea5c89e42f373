// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package models

// MaxRecentEvents bounds the recent-activity window used for ranking.
const MaxRecentEvents = 5

// RecommendationContext carries the per-request ranking inputs:
// the active city, an optional category filter, and the user's recent
// event ids ordered most-recent-first.
type RecommendationContext struct {
	City           string
	CategoryFilter string
	RecentEventIDs []string
}

// BoundedRecent returns the recent-event ids truncated to MaxRecentEvents.
func (rc RecommendationContext) BoundedRecent() []string {
	if len(rc.RecentEventIDs) <= MaxRecentEvents {
		return rc.RecentEventIDs
	}
	return rc.RecentEventIDs[:MaxRecentEvents]
}
