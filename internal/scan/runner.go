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

// Package scan runs an on-demand subscription scan of one connected
// mailbox: fetch, extract, rank, and queue first-seen candidates for review.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/extractor"
	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/metrics"
	"github.com/subtrack/ingestion/internal/models"
)

// ErrConnectionExpired means the provider rejected the stored credentials
// and the user has to reconnect the account.
var ErrConnectionExpired = errors.New("email connection expired, please reconnect your account")

// ConnectionStore is the subset of the connection store the runner uses.
type ConnectionStore interface {
	Get(ctx context.Context, userID, id string) (*connection.Record, error)
	TouchScanned(ctx context.Context, id string) error
	UpdateToken(ctx context.Context, id string, tok *oauth2.Token) error
	MarkStatus(ctx context.Context, id, status string) error
}

// SourceFactory opens a mail source for a stored connection. The returned
// token source reports the token in use after the search, so a refresh
// can be persisted.
type SourceFactory interface {
	Open(ctx context.Context, rec *connection.Record) (mailbox.Source, oauth2.TokenSource, error)
}

// Deduper reports whether a user's message is seen for the first time.
type Deduper interface {
	IsNew(ctx context.Context, userID, messageID string) (bool, error)
}

// Publisher queues a candidate for review.
type Publisher interface {
	PublishCandidate(ctx context.Context, c *models.ScanCandidate) (string, error)
}

// Result summarises one scan.
type Result struct {
	ConnectionID  string                      `json:"connection_id"`
	Provider      string                      `json:"provider"`
	Examined      int                         `json:"emails_scanned"`
	Subscriptions []models.ParsedSubscription `json:"subscriptions"`
	Queued        int                         `json:"queued"`
	Message       string                      `json:"-"`
}

// Runner performs mailbox scans.
type Runner struct {
	connections ConnectionStore
	sources     SourceFactory
	extractor   *extractor.Extractor
	publisher   Publisher
	dedup       Deduper
	metrics     *metrics.Metrics
	maxMessages int
	now         func() time.Time
}

// RunnerConfig holds dependencies for the scan runner. Publisher and
// Dedup are optional; without a publisher nothing is queued.
type RunnerConfig struct {
	Connections ConnectionStore
	Sources     SourceFactory
	Extractor   *extractor.Extractor
	Publisher   Publisher
	Dedup       Deduper
	Metrics     *metrics.Metrics
	MaxMessages int
}

// NewRunner creates a scan runner.
func NewRunner(cfg RunnerConfig) *Runner {
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = mailbox.DefaultMaxMessages
	}
	ex := cfg.Extractor
	if ex == nil {
		ex = extractor.New(extractor.Config{})
	}
	return &Runner{
		connections: cfg.Connections,
		sources:     cfg.Sources,
		extractor:   ex,
		publisher:   cfg.Publisher,
		dedup:       cfg.Dedup,
		metrics:     cfg.Metrics,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Run scans one of the caller's connections.
func (r *Runner) Run(ctx context.Context, userID, connectionID string) (*Result, error) {
	rec, err := r.connections.Get(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}

	start := r.now()
	slog.Info("starting mailbox scan",
		"user", userID,
		"connection", rec.ID,
		"provider", rec.Provider,
	)

	src, ts, err := r.sources.Open(ctx, rec)
	if err != nil {
		r.metrics.ObserveScan(rec.Provider, metrics.OutcomeError, 0, nil)
		return nil, fmt.Errorf("open %s mailbox: %w", rec.Provider, err)
	}

	emails, err := src.Search(ctx, r.maxMessages)
	if err != nil {
		if isExpired(err) {
			r.metrics.ObserveScan(rec.Provider, metrics.OutcomeExpired, 0, nil)
			if mErr := r.connections.MarkStatus(ctx, rec.ID, connection.StatusExpired); mErr != nil {
				slog.Warn("failed to mark connection expired", "connection", rec.ID, "error", mErr)
			}
			slog.Warn("mailbox credentials rejected", "user", userID, "connection", rec.ID, "error", err)
			return nil, ErrConnectionExpired
		}
		r.metrics.ObserveScan(rec.Provider, metrics.OutcomeError, 0, nil)
		return nil, fmt.Errorf("search %s mailbox: %w", rec.Provider, err)
	}

	if len(emails) > r.maxMessages {
		emails = emails[:r.maxMessages]
	}

	matches := r.extractor.Matches(emails)

	subs := make([]models.ParsedSubscription, len(matches))
	confidences := make([]int, len(matches))
	for i, m := range matches {
		subs[i] = m.Subscription
		confidences[i] = m.Subscription.Confidence
	}

	if err := r.connections.TouchScanned(ctx, rec.ID); err != nil {
		slog.Warn("failed to update last scanned", "connection", rec.ID, "error", err)
	}
	r.persistToken(ctx, rec, ts)

	queued := r.queue(ctx, rec, matches, start)

	r.metrics.ObserveScan(rec.Provider, metrics.OutcomeOK, len(emails), confidences)
	r.metrics.ObserveQueued(queued)

	result := &Result{
		ConnectionID:  rec.ID,
		Provider:      rec.Provider,
		Examined:      len(emails),
		Subscriptions: subs,
		Queued:        queued,
		Message:       fmt.Sprintf("Scanned %d emails, found %d potential subscriptions", len(emails), len(subs)),
	}

	slog.Info("mailbox scan complete",
		"user", userID,
		"connection", rec.ID,
		"provider", rec.Provider,
		"emails", len(emails),
		"found", len(subs),
		"queued", queued,
		"elapsed", time.Since(start),
	)

	return result, nil
}

// queue publishes first-seen matches. Failures are logged, not returned:
// the caller still gets the ranked list.
func (r *Runner) queue(ctx context.Context, rec *connection.Record, matches []extractor.Match, scannedAt time.Time) int {
	if r.publisher == nil {
		return 0
	}

	queued := 0
	for _, m := range matches {
		if r.dedup != nil && m.Email.ID != "" {
			isNew, err := r.dedup.IsNew(ctx, rec.UserID, m.Email.ID)
			if err != nil {
				slog.Warn("dedup check failed", "message_id", m.Email.ID, "error", err)
			} else if !isNew {
				continue
			}
		}

		c := &models.ScanCandidate{
			UserID:       rec.UserID,
			ConnectionID: rec.ID,
			Provider:     rec.Provider,
			MessageID:    m.Email.ID,
			Subscription: m.Subscription,
			ScannedAt:    scannedAt.UTC().Format(time.RFC3339),
		}
		if _, err := r.publisher.PublishCandidate(ctx, c); err != nil {
			slog.Warn("publish candidate failed", "message_id", m.Email.ID, "error", err)
			continue
		}
		queued++
	}
	return queued
}

// persistToken stores the token if the source refreshed it during the scan.
func (r *Runner) persistToken(ctx context.Context, rec *connection.Record, ts oauth2.TokenSource) {
	if ts == nil {
		return
	}
	tok, err := ts.Token()
	if err != nil || tok == nil || tok.AccessToken == rec.AccessToken {
		return
	}
	if err := r.connections.UpdateToken(ctx, rec.ID, tok); err != nil {
		slog.Warn("failed to persist refreshed token", "connection", rec.ID, "error", err)
		return
	}
	slog.Info("persisted refreshed token", "connection", rec.ID, "provider", rec.Provider)
}

// isExpired reports whether err means the stored credentials are no
// longer usable: a 401 from the provider or a failed token refresh.
func isExpired(err error) bool {
	if errors.Is(err, mailbox.ErrUnauthorized) {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}
