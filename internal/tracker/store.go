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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/subtrack/ingestion/internal/models"
)

// Store persists tracked subscriptions in Postgres. Every operation is
// scoped to the calling user.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore creates a tracker store backed by the given Postgres pool.
// It ensures the user_subscriptions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure tracker schema: %w", err)
	}
	slog.Info("tracker store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_subscriptions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			application_name TEXT NOT NULL,
			date_subscribed  DATE NOT NULL,
			date_ending      DATE,
			cost_aed         NUMERIC(12,2) NOT NULL DEFAULT 0,
			billing_cycle    TEXT NOT NULL DEFAULT 'monthly',
			status           TEXT NOT NULL DEFAULT 'active',
			notes            TEXT NOT NULL DEFAULT '',
			auto_renewal     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_usubs_user ON user_subscriptions(user_id);
		CREATE INDEX IF NOT EXISTS idx_usubs_user_name ON user_subscriptions(user_id, LOWER(application_name));
	`)
	return err
}

// Dates and money travel as text so no codec extensions are needed.
const returnColumns = `
	id, user_id, application_name,
	to_char(date_subscribed, 'YYYY-MM-DD'), to_char(date_ending, 'YYYY-MM-DD'),
	cost_aed::text, billing_cycle, status, notes, auto_renewal, created_at, updated_at`

// List returns the caller's subscriptions, most recently subscribed first.
func (s *Store) List(ctx context.Context, userID string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+returnColumns+`
		FROM user_subscriptions
		WHERE user_id = $1
		ORDER BY date_subscribed DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Add creates a subscription for the caller. Unsupplied fields take the
// defaults: cost 0, monthly, subscribed today, active, auto-renewing.
func (s *Store) Add(ctx context.Context, userID string, in Input) (*Subscription, error) {
	sub, err := in.forCreate(s.now())
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_subscriptions
			(id, user_id, application_name, date_subscribed, date_ending,
			 cost_aed, billing_cycle, status, notes, auto_renewal)
		VALUES ($1, $2, $3, $4::date, $5::date, $6::numeric, $7, $8, $9, $10)
		RETURNING `+returnColumns,
		uuid.NewString(), userID, sub.ApplicationName, sub.DateSubscribed, sub.DateEnding,
		sub.CostAED.String(), string(sub.BillingCycle), sub.Status, sub.Notes, sub.AutoRenewal,
	)

	created, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return created, nil
}

// Update applies the supplied fields to one of the caller's subscriptions.
func (s *Store) Update(ctx context.Context, userID, id string, in Input) (*Subscription, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sets, args := updateAssignments(in)
	if len(sets) == 0 {
		return s.get(ctx, userID, id)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf(`
		UPDATE user_subscriptions
		SET %s, updated_at = NOW()
		WHERE id = $%d AND user_id = $%d
		RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), returnColumns)

	updated, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return updated, nil
}

// updateAssignments builds the SET list for the supplied fields. Placeholders
// are numbered from $1 in field order.
func updateAssignments(in Input) ([]string, []any) {
	var sets []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if in.ApplicationName != nil {
		add("application_name = $%d", strings.TrimSpace(*in.ApplicationName))
	}
	if in.DateSubscribed != nil {
		add("date_subscribed = $%d::date", *in.DateSubscribed)
	}
	if in.DateEnding != nil {
		var ending *string
		if *in.DateEnding != "" {
			ending = in.DateEnding
		}
		add("date_ending = $%d::date", ending)
	}
	if in.CostAED != nil {
		add("cost_aed = $%d::numeric", in.CostAED.String())
	}
	if in.BillingCycle != nil {
		add("billing_cycle = $%d", string(*in.BillingCycle))
	}
	if in.Status != nil {
		add("status = $%d", *in.Status)
	}
	if in.Notes != nil {
		add("notes = $%d", *in.Notes)
	}
	if in.AutoRenewal != nil {
		add("auto_renewal = $%d", *in.AutoRenewal)
	}
	return sets, args
}

func (s *Store) get(ctx context.Context, userID, id string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+returnColumns+`
		FROM user_subscriptions
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Delete removes one of the caller's subscriptions.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM user_subscriptions WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Accept tracks a scanned candidate. It refuses a candidate whose name,
// compared case-insensitively, matches one of the caller's active records.
func (s *Store) Accept(ctx context.Context, userID string, c models.ParsedSubscription) (*Subscription, error) {
	if strings.TrimSpace(c.ApplicationName) == "" {
		return nil, fmt.Errorf("%w: application_name is required", ErrInvalid)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_subscriptions
			WHERE user_id = $1 AND LOWER(application_name) = LOWER($2) AND status = 'active'
		)
	`, userID, strings.TrimSpace(c.ApplicationName)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check duplicate subscription: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, c.ApplicationName)
	}

	return s.Add(ctx, userID, FromCandidate(c))
}

// Stats summarises the caller's subscriptions.
func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	subs, err := s.List(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(subs), nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var cost, cycle string
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ApplicationName,
		&sub.DateSubscribed, &sub.DateEnding,
		&cost, &cycle, &sub.Status, &sub.Notes, &sub.AutoRenewal,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sub.CostAED, err = decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("parse cost %q: %w", cost, err)
	}
	sub.BillingCycle = models.BillingCycle(cycle)
	return &sub, nil
}
