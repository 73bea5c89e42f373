// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package location

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// IPProvider resolves the caller's own city from its public IP address.
// Providers form a fallback chain: the first available one that returns a
// usable city wins.
type IPProvider interface {
	// Lookup returns the city for the caller's public IP.
	Lookup(ctx context.Context) (string, error)

	// Name returns the provider name for logging.
	Name() string

	// IsAvailable reports whether the provider can currently be used
	// (rate limits, configuration).
	IsAvailable() bool
}

const ipLookupTimeout = 5 * time.Second

// IPAPIProvider queries ip-api.com. Free, no API key, limited to
// 45 requests per minute; the limiter keeps us under that.
type IPAPIProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewIPAPIProvider creates an ip-api.com provider.
func NewIPAPIProvider() *IPAPIProvider {
	return &IPAPIProvider{
		baseURL:    "http://ip-api.com/json/",
		httpClient: &http.Client{Timeout: ipLookupTimeout},
		limiter:    rate.NewLimiter(rate.Limit(45.0/60.0), 5),
	}
}

// Name implements IPProvider.
func (p *IPAPIProvider) Name() string { return "ip-api.com" }

// IsAvailable implements IPProvider.
func (p *IPAPIProvider) IsAvailable() bool { return p.limiter.Tokens() >= 1 }

// Lookup implements IPProvider. Requesting the bare endpoint resolves the
// requesting IP itself.
func (p *IPAPIProvider) Lookup(ctx context.Context) (string, error) {
	if !p.limiter.Allow() {
		return "", fmt.Errorf("ip-api.com rate limit reached")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?fields=status,message,city", nil)
	if err != nil {
		return "", fmt.Errorf("create ip-api request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip-api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ip-api response: %w", err)
	}
	if payload.Status != "success" {
		return "", fmt.Errorf("ip-api lookup failed: %s", payload.Message)
	}
	return usableCity(payload.City)
}

// IPAPICoProvider queries ipapi.co, the chain's second tier.
type IPAPICoProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewIPAPICoProvider creates an ipapi.co provider.
func NewIPAPICoProvider() *IPAPICoProvider {
	return &IPAPICoProvider{
		baseURL:    "https://ipapi.co/json/",
		httpClient: &http.Client{Timeout: ipLookupTimeout},
		limiter:    rate.NewLimiter(rate.Limit(0.5), 2),
	}
}

// Name implements IPProvider.
func (p *IPAPICoProvider) Name() string { return "ipapi.co" }

// IsAvailable implements IPProvider.
func (p *IPAPICoProvider) IsAvailable() bool { return p.limiter.Tokens() >= 1 }

// Lookup implements IPProvider.
func (p *IPAPICoProvider) Lookup(ctx context.Context) (string, error) {
	if !p.limiter.Allow() {
		return "", fmt.Errorf("ipapi.co rate limit reached")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("create ipapi.co request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipapi.co request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipapi.co returned status %d", resp.StatusCode)
	}

	var payload struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ipapi.co response: %w", err)
	}

	city := payload.City
	if city == "" {
		city = payload.Region
	}
	return usableCity(city)
}

// usableCity rejects empty and sentinel city values.
func usableCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" || strings.EqualFold(city, UnknownCity) {
		return "", fmt.Errorf("provider returned no usable city")
	}
	return city, nil
}
