// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package config holds the application configuration. Settings load in
// three layers with clear precedence: environment variables override the
// optional YAML config file, which overrides built-in defaults.
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Backend  BackendConfig  `koanf:"backend"`
	Ranking  RankingConfig  `koanf:"ranking"`
	Location LocationConfig `koanf:"location"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// BackendConfig configures the events backend: the REST snapshot/mutation
// endpoint and the WebSocket push channel.
type BackendConfig struct {
	URL          string        `koanf:"url" validate:"required,url"`
	WSURL        string        `koanf:"ws_url"`
	Timeout      time.Duration `koanf:"timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// RankingConfig configures the remote recommendation ranking service.
// Disabled means every request takes the local fallback.
type RankingConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"`
}

// LocationConfig configures the location resolution pipeline.
// Latitude/Longitude, when both non-zero, act as the geolocation source;
// otherwise the pipeline starts at the IP tier.
type LocationConfig struct {
	DefaultCity        string        `koanf:"default_city" validate:"required"`
	GeoTimeout         time.Duration `koanf:"geo_timeout"`
	Latitude           float64       `koanf:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64       `koanf:"longitude" validate:"gte=-180,lte=180"`
	YandexAPIKey       string        `koanf:"yandex_api_key"`
	NominatimUserAgent string        `koanf:"nominatim_user_agent"`
	IPLookupEnabled    bool          `koanf:"ip_lookup_enabled"`
}

// HasCoordinates reports whether a static geolocation source is configured.
func (l LocationConfig) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// StorageConfig configures the persistent KV store.
type StorageConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8095,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Backend: BackendConfig{
			URL:          "http://localhost:8000/api/v1",
			WSURL:        "ws://localhost:8000/api/v1/ws",
			Timeout:      10 * time.Second,
			PollInterval: 15 * time.Second,
		},
		Ranking: RankingConfig{
			Enabled: true,
			URL:     "http://localhost:8010/rank",
			Timeout: 5 * time.Second,
		},
		Location: LocationConfig{
			DefaultCity:        "Ростов",
			GeoTimeout:         10 * time.Second,
			Latitude:           0,
			Longitude:          0,
			YandexAPIKey:       "",
			NominatimUserAgent: "eventscope/1.0",
			IPLookupEnabled:    true,
		},
		Storage: StorageConfig{
			Dir:      "/data/eventscope",
			InMemory: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
