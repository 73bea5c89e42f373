// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config/config.yaml",
	"/etc/eventscope/config.yaml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the environment variable layer.
const envPrefix = "EVENTSCOPE_"

// Load builds the configuration from three layers:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. EVENTSCOPE_* environment variables (highest priority)
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// loadFrom is Load with an explicit config file path; tests use it to
// point at a temp file. An empty path skips the file layer.
func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are the config paths parsed as comma-separated lists
// when they arrive through the environment layer.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for
// the known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps EVENTSCOPE_* variable names to koanf config
// paths. Unmapped names are skipped so stray environment variables cannot
// pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		"server_host":                "server.host",
		"server_port":                "server.port",
		"server_read_timeout":        "server.read_timeout",
		"server_write_timeout":       "server.write_timeout",
		"server_cors_origins":        "server.cors_origins",
		"server_rate_limit_requests": "server.rate_limit_requests",
		"server_rate_limit_window":   "server.rate_limit_window",

		"backend_url":           "backend.url",
		"backend_ws_url":        "backend.ws_url",
		"backend_timeout":       "backend.timeout",
		"backend_poll_interval": "backend.poll_interval",

		"ranking_enabled": "ranking.enabled",
		"ranking_url":     "ranking.url",
		"ranking_timeout": "ranking.timeout",

		"location_default_city":         "location.default_city",
		"location_geo_timeout":          "location.geo_timeout",
		"location_latitude":             "location.latitude",
		"location_longitude":            "location.longitude",
		"location_yandex_api_key":       "location.yandex_api_key",
		"location_nominatim_user_agent": "location.nominatim_user_agent",
		"location_ip_lookup_enabled":    "location.ip_lookup_enabled",

		"storage_dir":       "storage.dir",
		"storage_in_memory": "storage.in_memory",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
