// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/avoronkov/eventscope/internal/logging"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("response encode failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
