// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package recommend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
)

// HTTPRanker calls the remote ranking service over HTTP. Requests run
// through a circuit breaker so a struggling service degrades into the
// local fallback instead of adding latency to every recommendation.
type HTTPRanker struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]string]
}

// NewHTTPRanker creates a ranker for the given endpoint URL.
func NewHTTPRanker(url string, timeout time.Duration) *HTTPRanker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger := logging.With().Str("component", "ranker").Logger()
	settings := gobreaker.Settings{
		Name:        "ranking-service",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	}

	return &HTTPRanker{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]string](settings),
	}
}

// Rank implements Ranker.
func (r *HTTPRanker) Rank(ctx context.Context, req RankRequest) ([]string, error) {
	return r.breaker.Execute(func() ([]string, error) {
		return r.rank(ctx, req)
	})
}

func (r *HTTPRanker) rank(ctx context.Context, rankReq RankRequest) ([]string, error) {
	body, err := json.Marshal(rankReq)
	if err != nil {
		return nil, fmt.Errorf("encode rank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ranking service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ranking service returned status %d", resp.StatusCode)
	}

	var payload struct {
		EventIDs []string `json:"event_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rank response: %w", err)
	}
	return payload.EventIDs, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
