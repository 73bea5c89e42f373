// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
)

// ErrMutationRejected is returned when the backend refuses a join or
// leave, for example because the event filled up first.
var ErrMutationRejected = errors.New("mutation rejected by backend")

// Client talks to the events backend REST API. All calls run through a
// circuit breaker; when the backend misbehaves the poll loop degrades to
// serving the previous snapshot instead of piling up slow requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[interface{}]
	logger     zerolog.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cb:         newUpstreamBreaker("events-backend"),
		logger:     logging.With().Str("component", "backend-client").Logger(),
	}
}

// FetchSnapshot retrieves the full event snapshot.
func (c *Client) FetchSnapshot(ctx context.Context) ([]models.EventSnapshot, error) {
	start := time.Now()
	result, err := castResult[[]models.EventSnapshot](c.cb.Execute(func() (interface{}, error) {
		return c.fetchSnapshot(ctx)
	}))
	if err != nil {
		metrics.SnapshotFetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.SnapshotFetchDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return *result, nil
}

func (c *Client) fetchSnapshot(ctx context.Context) (*[]models.EventSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot fetch returned status %d", resp.StatusCode)
	}

	var snaps []models.EventSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snaps, nil
}

// Join confirms a join with the backend and returns the updated event,
// whose participant list is authoritative.
func (c *Client) Join(ctx context.Context, eventID, userID string) (*models.EventSnapshot, error) {
	return c.mutate(ctx, eventID, userID, "join")
}

// Leave confirms a leave with the backend and returns the updated event.
func (c *Client) Leave(ctx context.Context, eventID, userID string) (*models.EventSnapshot, error) {
	return c.mutate(ctx, eventID, userID, "leave")
}

func (c *Client) mutate(ctx context.Context, eventID, userID, action string) (*models.EventSnapshot, error) {
	return castResult[models.EventSnapshot](c.cb.Execute(func() (interface{}, error) {
		return c.doMutate(ctx, eventID, userID, action)
	}))
}

func (c *Client) doMutate(ctx context.Context, eventID, userID, action string) (*models.EventSnapshot, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}

	url := fmt.Sprintf("%s/events/%s/%s", c.baseURL, eventID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%s rejected for event %s: %w", action, eventID, ErrMutationRejected)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", action, resp.StatusCode)
	}

	var snap models.EventSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	return &snap, nil
}
