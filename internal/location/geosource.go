// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package location

import (
	"context"
	"errors"

	"github.com/avoronkov/eventscope/internal/models"
)

// ErrNoCoordinates is returned by a GeoSource that cannot produce a
// position; the resolver then falls through to the IP tier.
var ErrNoCoordinates = errors.New("location: no coordinates available")

// GeoSource produces the device position for the geolocation tier. The
// call is single-shot; the resolver bounds it with the configured timeout.
type GeoSource interface {
	Coordinates(ctx context.Context) (models.Coordinates, error)
}

// StaticGeoSource serves a position fixed by configuration. Deployments
// without a positioning device pin their coordinates in config; the
// zero value reports ErrNoCoordinates.
type StaticGeoSource struct {
	Lat, Lon float64
	Set      bool
}

// NewStaticGeoSource creates a source pinned to the given position.
func NewStaticGeoSource(lat, lon float64) *StaticGeoSource {
	return &StaticGeoSource{Lat: lat, Lon: lon, Set: true}
}

// Coordinates implements GeoSource.
func (s *StaticGeoSource) Coordinates(_ context.Context) (models.Coordinates, error) {
	if !s.Set {
		return models.Coordinates{}, ErrNoCoordinates
	}
	return models.Coordinates{Latitude: s.Lat, Longitude: s.Lon}, nil
}
