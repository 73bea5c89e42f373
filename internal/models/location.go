// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package models

// Coordinates is a geographic point. Ranges are enforced by the
// geolocation source, not validated further here.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DetectionMethod records how the current city was resolved. Persisted
// alongside the city so a later session can seed without re-detecting.
type DetectionMethod string

const (
	MethodGeolocation DetectionMethod = "geolocation"
	MethodIP          DetectionMethod = "ip"
	MethodDefault     DetectionMethod = "default"
)

// DetectionState tracks the location pipeline's progress for the session.
// Transitions drive API responses, not store correctness.
type DetectionState int

const (
	DetectionNotTried DetectionState = iota
	DetectionDetecting
	DetectionSuccess
	DetectionFailed
)

// String implements fmt.Stringer.
func (s DetectionState) String() string {
	switch s {
	case DetectionNotTried:
		return "not_tried"
	case DetectionDetecting:
		return "detecting"
	case DetectionSuccess:
		return "success"
	case DetectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
