// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/oauth"
	"github.com/subtrack/ingestion/internal/scan"
	"github.com/subtrack/ingestion/internal/tracker"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Expired bool   `json:"expired,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

// writeFailure maps a domain error onto a status code and client message.
// Unexpected errors are logged and hidden from the client.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scan.ErrConnectionExpired):
		writeJSON(w, http.StatusUnauthorized, envelope{
			Error:   "Email connection expired. Please reconnect your account.",
			Expired: true,
		})
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, "Connection not found")
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, tracker.ErrDuplicate):
		writeError(w, http.StatusConflict, "This subscription is already being tracked")
	case errors.Is(err, tracker.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, oauth.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "Unknown email provider")
	case errors.Is(err, oauth.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
