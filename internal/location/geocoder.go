// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package location

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/avoronkov/eventscope/internal/models"
)

// Geocoder reverse-geocodes a coordinate into a free-text address.
type Geocoder interface {
	// ReverseGeocode returns a human-readable address for the position.
	ReverseGeocode(ctx context.Context, pos models.Coordinates) (string, error)

	// Name returns the collaborator name for logging.
	Name() string

	// IsAvailable reports whether the geocoder is configured and usable.
	IsAvailable() bool
}

const (
	yandexGeocodeURL    = "https://geocode-maps.yandex.ru/1.x/"
	nominatimReverseURL = "https://nominatim.openstreetmap.org/reverse"
	geocodeTimeout      = 10 * time.Second
)

// YandexGeocoder resolves addresses through the Yandex geocoder HTTP API.
// Requires an API key; without one IsAvailable reports false and the
// resolver skips to the next geocoder in the chain.
type YandexGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewYandexGeocoder creates a Yandex geocoder with the given API key.
func NewYandexGeocoder(apiKey string) *YandexGeocoder {
	return &YandexGeocoder{
		apiKey:     apiKey,
		baseURL:    yandexGeocodeURL,
		httpClient: &http.Client{Timeout: geocodeTimeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
}

// Name implements Geocoder.
func (g *YandexGeocoder) Name() string { return "yandex" }

// IsAvailable implements Geocoder.
func (g *YandexGeocoder) IsAvailable() bool { return g.apiKey != "" }

// yandexResponse mirrors the slice of the Yandex geocoder payload we read.
type yandexResponse struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					MetaDataProperty struct {
						GeocoderMetaData struct {
							Text    string `json:"text"`
							Address struct {
								Formatted string `json:"formatted"`
							} `json:"Address"`
						} `json:"GeocoderMetaData"`
					} `json:"metaDataProperty"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

// ReverseGeocode implements Geocoder. Note the lon,lat order in the
// geocode parameter; Yandex expects it reversed.
func (g *YandexGeocoder) ReverseGeocode(ctx context.Context, pos models.Coordinates) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("yandex rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("geocode", fmt.Sprintf("%f,%f", pos.Longitude, pos.Latitude))
	params.Set("lang", "ru_RU")
	params.Set("apikey", g.apiKey)
	params.Set("results", "1")
	params.Set("kind", "house")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create yandex request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("yandex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("yandex geocoder returned status %d", resp.StatusCode)
	}

	var payload yandexResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode yandex response: %w", err)
	}

	members := payload.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return "", fmt.Errorf("yandex returned no geo objects for %f,%f", pos.Latitude, pos.Longitude)
	}

	meta := members[0].GeoObject.MetaDataProperty.GeocoderMetaData
	if meta.Address.Formatted != "" {
		return meta.Address.Formatted, nil
	}
	if meta.Text != "" {
		return meta.Text, nil
	}
	return "", fmt.Errorf("yandex returned empty address for %f,%f", pos.Latitude, pos.Longitude)
}

// NominatimGeocoder resolves addresses through the OpenStreetMap Nominatim
// API. Free, no key, but limited to one request per second; the limiter
// enforces that.
type NominatimGeocoder struct {
	userAgent  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimGeocoder creates a Nominatim geocoder. The user agent is
// mandatory under the Nominatim usage policy.
func NewNominatimGeocoder(userAgent string) *NominatimGeocoder {
	if userAgent == "" {
		userAgent = "eventscope/1.0"
	}
	return &NominatimGeocoder{
		userAgent:  userAgent,
		baseURL:    nominatimReverseURL,
		httpClient: &http.Client{Timeout: geocodeTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Name implements Geocoder.
func (g *NominatimGeocoder) Name() string { return "nominatim" }

// IsAvailable implements Geocoder.
func (g *NominatimGeocoder) IsAvailable() bool { return true }

// ReverseGeocode implements Geocoder.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, pos models.Coordinates) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("nominatim rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", fmt.Sprintf("%f", pos.Latitude))
	params.Set("lon", fmt.Sprintf("%f", pos.Longitude))
	params.Set("addressdetails", "1")
	params.Set("accept-language", "ru")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var payload struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode nominatim response: %w", err)
	}
	if payload.DisplayName == "" {
		return "", fmt.Errorf("nominatim returned empty address for %f,%f", pos.Latitude, pos.Longitude)
	}
	return payload.DisplayName, nil
}
