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

// Package api serves the JSON HTTP API: direct email parsing, mailbox
// connections and scans, and the subscription tracker.
//
// Callers are identified by the X-User-ID header, set by the fronting
// auth proxy on every route, the OAuth callback included. The callback's
// state must be a nonce issued to that same caller.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/extractor"
	"github.com/subtrack/ingestion/internal/metrics"
	"github.com/subtrack/ingestion/internal/models"
	"github.com/subtrack/ingestion/internal/oauth"
	"github.com/subtrack/ingestion/internal/scan"
	"github.com/subtrack/ingestion/internal/tracker"
)

// UserHeader carries the authenticated caller's id.
const UserHeader = "X-User-ID"

// maxBodyBytes bounds request bodies; batch parse requests carry full emails.
const maxBodyBytes = 8 << 20

// Connections is the subset of the connection store the API uses.
type Connections interface {
	ListByUser(ctx context.Context, userID string) ([]connection.Record, error)
	Save(ctx context.Context, userID, provider, email string, tok *oauth2.Token) (*connection.Record, error)
	Delete(ctx context.Context, userID, id string) error
}

// Scanner runs a mailbox scan.
type Scanner interface {
	Run(ctx context.Context, userID, connectionID string) (*scan.Result, error)
}

// Authorizer drives the provider OAuth flow.
type Authorizer interface {
	AuthURL(provider, state string) (string, error)
	Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error)
	AccountEmail(ctx context.Context, provider string, tok *oauth2.Token) (string, error)
}

// States issues and checks the OAuth state nonces that bind a consent
// round trip to the user who started it.
type States interface {
	Issue(ctx context.Context, userID string) (string, error)
	Verify(ctx context.Context, state, userID string) error
}

// Tracker is the subset of the tracker store the API uses.
type Tracker interface {
	List(ctx context.Context, userID string) ([]tracker.Subscription, error)
	Add(ctx context.Context, userID string, in tracker.Input) (*tracker.Subscription, error)
	Update(ctx context.Context, userID, id string, in tracker.Input) (*tracker.Subscription, error)
	Delete(ctx context.Context, userID, id string) error
	Accept(ctx context.Context, userID string, c models.ParsedSubscription) (*tracker.Subscription, error)
	Stats(ctx context.Context, userID string) (tracker.Stats, error)
}

// Handler serves the API routes.
type Handler struct {
	extractor   *extractor.Extractor
	connections Connections
	scanner     Scanner
	auth        Authorizer
	states      States
	tracker     Tracker
	metrics     *metrics.Metrics
	appURL      string
}

// HandlerConfig holds the handler's dependencies.
type HandlerConfig struct {
	Extractor   *extractor.Extractor
	Connections Connections
	Scanner     Scanner
	Auth        Authorizer
	States      States
	Tracker     Tracker
	Metrics     *metrics.Metrics
	// AppURL is the front-end base URL the OAuth callback redirects to.
	AppURL string
}

// NewHandler creates an API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	ex := cfg.Extractor
	if ex == nil {
		ex = extractor.New(extractor.Config{})
	}
	return &Handler{
		extractor:   ex,
		connections: cfg.Connections,
		scanner:     cfg.Scanner,
		auth:        cfg.Auth,
		states:      cfg.States,
		tracker:     cfg.Tracker,
		metrics:     cfg.Metrics,
		appURL:      strings.TrimSuffix(cfg.AppURL, "/"),
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/parse", h.parse)
	mux.HandleFunc("POST /api/parse/batch", h.parseBatch)

	mux.HandleFunc("GET /api/connections", h.requireUser(h.listConnections))
	mux.HandleFunc("DELETE /api/connections/{id}", h.requireUser(h.deleteConnection))
	mux.HandleFunc("POST /api/connections/{id}/scan", h.requireUser(h.scanConnection))

	mux.HandleFunc("GET /api/auth/{provider}/url", h.requireUser(h.authURL))
	mux.HandleFunc("GET /api/auth/{provider}/callback", h.requireUser(h.authCallback))

	mux.HandleFunc("GET /api/subscriptions", h.requireUser(h.listSubscriptions))
	mux.HandleFunc("POST /api/subscriptions", h.requireUser(h.addSubscription))
	mux.HandleFunc("PUT /api/subscriptions/{id}", h.requireUser(h.updateSubscription))
	mux.HandleFunc("DELETE /api/subscriptions/{id}", h.requireUser(h.deleteSubscription))
	mux.HandleFunc("POST /api/subscriptions/accept", h.requireUser(h.acceptSubscription))
	mux.HandleFunc("GET /api/subscriptions/stats", h.requireUser(h.subscriptionStats))

	return mux
}

type userHandlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// requireUser rejects requests without a caller id.
func (h *Handler) requireUser(next userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next(w, r, userID)
	}
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// --- Parsing ---

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) {
	var email models.CandidateEmail
	if err := decodeBody(w, r, &email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.ObserveParse("single")

	sub, ok := h.extractor.Extract(email)
	if !ok {
		writeOK(w, nil, "No subscription detected")
		return
	}
	writeOK(w, sub, "")
}

func (h *Handler) parseBatch(w http.ResponseWriter, r *http.Request) {
	var emails []models.CandidateEmail
	if err := decodeBody(w, r, &emails); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.ObserveParse("batch")

	subs := h.extractor.ScanAll(emails)
	writeOK(w, subs, fmt.Sprintf("Found %d potential subscriptions in %d emails", len(subs), len(emails)))
}

// --- Connections ---

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request, userID string) {
	recs, err := h.connections.ListByUser(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, recs, "")
}

func (h *Handler) deleteConnection(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.connections.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, nil, "Connection removed successfully")
}

func (h *Handler) scanConnection(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.scanner.Run(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, res, res.Message)
}

// --- OAuth ---

func (h *Handler) authURL(w http.ResponseWriter, r *http.Request, userID string) {
	state, err := h.states.Issue(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := h.auth.AuthURL(r.PathValue("provider"), state)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, map[string]string{"url": u}, "")
}

// authCallback completes the OAuth flow for the calling user and redirects
// the browser back to the scan page with either ?connected=<provider> or
// ?error=<reason>. The state must have been issued to the caller.
func (h *Handler) authCallback(w http.ResponseWriter, r *http.Request, userID string) {
	provider := r.PathValue("provider")
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		h.redirectScan(w, r, "error", e)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.redirectScan(w, r, "error", "no_code")
		return
	}
	state := q.Get("state")
	if state == "" {
		h.redirectScan(w, r, "error", "no_state")
		return
	}
	if err := h.states.Verify(r.Context(), state, userID); err != nil {
		slog.Warn("oauth callback state rejected",
			"provider", provider,
			"user", userID,
			"error", err,
		)
		reason := "auth_failed"
		if errors.Is(err, oauth.ErrInvalidState) {
			reason = "invalid_state"
		}
		h.redirectScan(w, r, "error", reason)
		return
	}

	if err := h.connect(r.Context(), userID, provider, code); err != nil {
		slog.Error("oauth callback failed",
			"provider", provider,
			"user", userID,
			"error", err,
		)
		h.redirectScan(w, r, "error", "auth_failed")
		return
	}
	h.redirectScan(w, r, "connected", provider)
}

func (h *Handler) connect(ctx context.Context, userID, provider, code string) error {
	tok, err := h.auth.Exchange(ctx, provider, code)
	if err != nil {
		return err
	}
	email, err := h.auth.AccountEmail(ctx, provider, tok)
	if err != nil {
		return err
	}
	rec, err := h.connections.Save(ctx, userID, provider, email, tok)
	if err != nil {
		return err
	}
	slog.Info("mailbox connected",
		"user", userID,
		"provider", provider,
		"connection", rec.ID,
	)
	return nil
}

func (h *Handler) redirectScan(w http.ResponseWriter, r *http.Request, key, value string) {
	target := fmt.Sprintf("%s/subscriptions/scan?%s=%s", h.appURL, key, url.QueryEscape(value))
	http.Redirect(w, r, target, http.StatusFound)
}

// --- Tracker ---

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request, userID string) {
	subs, err := h.tracker.List(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, subs, "")
}

func (h *Handler) addSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	var in tracker.Input
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.tracker.Add(r.Context(), userID, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, sub, "Subscription added successfully")
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	var in tracker.Input
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.tracker.Update(r.Context(), userID, r.PathValue("id"), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, sub, "Subscription updated successfully")
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.tracker.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, nil, "Subscription deleted successfully")
}

func (h *Handler) acceptSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	var c models.ParsedSubscription
	if err := decodeBody(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.tracker.Accept(r.Context(), userID, c)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, sub, "Subscription added successfully")
}

func (h *Handler) subscriptionStats(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := h.tracker.Stats(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeOK(w, st, "")
}
