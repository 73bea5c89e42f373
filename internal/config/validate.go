// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration after all layers are merged. Struct
// tags cover ranges and enums; the cross-field and URL-scheme rules are
// checked by hand.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateHTTPURL(c.Backend.URL, "backend.url"); err != nil {
		return err
	}
	if c.Backend.WSURL != "" {
		if err := validateWSURL(c.Backend.WSURL, "backend.ws_url"); err != nil {
			return err
		}
	}
	if c.Ranking.Enabled {
		if c.Ranking.URL == "" {
			return fmt.Errorf("ranking.url is required when ranking.enabled is true")
		}
		if err := validateHTTPURL(c.Ranking.URL, "ranking.url"); err != nil {
			return err
		}
	}

	if c.Backend.PollInterval < time.Second {
		return fmt.Errorf("backend.poll_interval %s is below the 1s minimum", c.Backend.PollInterval)
	}
	if c.Location.GeoTimeout <= 0 {
		return fmt.Errorf("location.geo_timeout must be positive")
	}
	if !c.Storage.InMemory && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required unless storage.in_memory is true")
	}

	return nil
}

func validateHTTPURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}

func validateWSURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s must use ws or wss, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
