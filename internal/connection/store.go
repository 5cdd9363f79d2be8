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

// Package connection provides a Postgres-backed store for the mailbox
// accounts users have connected through OAuth.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// Connection statuses.
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusDisconnected = "disconnected"
)

// ErrNotFound is returned when no connection matches the id for the caller.
var ErrNotFound = errors.New("connection not found")

// Record is one connected mailbox. Tokens never leave the service.
type Record struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Provider       string     `json:"provider"`
	EmailAddress   string     `json:"email_address"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
	Status         string     `json:"status"`
	LastScannedAt  *time.Time `json:"last_scanned_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Token returns the stored credentials as an oauth2 token.
func (r *Record) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
	if r.TokenExpiresAt != nil {
		tok.Expiry = *r.TokenExpiresAt
	}
	return tok
}

// Store provides CRUD operations for connection records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection store backed by the given Postgres pool.
// It ensures the email_connections table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure connection schema: %w", err)
	}
	slog.Info("connection store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_connections (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			provider         TEXT NOT NULL,
			email_address    TEXT NOT NULL,
			access_token     TEXT NOT NULL,
			refresh_token    TEXT DEFAULT '',
			token_expires_at TIMESTAMPTZ,
			status           TEXT DEFAULT 'active',
			last_scanned_at  TIMESTAMPTZ,
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			updated_at       TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(user_id, provider)
		);
		CREATE INDEX IF NOT EXISTS idx_conn_user ON email_connections(user_id);
	`)
	return err
}

const selectColumns = `
	SELECT id, user_id, provider, email_address, access_token, refresh_token,
	       token_expires_at, status, last_scanned_at, created_at, updated_at
	FROM email_connections`

// Save inserts or replaces the caller's connection for a provider. A user
// has at most one connection per provider; reconnecting keeps its id.
func (s *Store) Save(ctx context.Context, userID, provider, email string, tok *oauth2.Token) (*Record, error) {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO email_connections
			(id, user_id, provider, email_address, access_token, refresh_token, token_expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		ON CONFLICT (user_id, provider) DO UPDATE SET
			email_address    = EXCLUDED.email_address,
			access_token     = EXCLUDED.access_token,
			refresh_token    = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), email_connections.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			status           = 'active',
			updated_at       = NOW()
		RETURNING id, user_id, provider, email_address, access_token, refresh_token,
		          token_expires_at, status, last_scanned_at, created_at, updated_at
	`, uuid.NewString(), userID, provider, email, tok.AccessToken, tok.RefreshToken, expiry)

	r, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	return r, nil
}

// Get retrieves one of the caller's connections.
func (s *Store) Get(ctx context.Context, userID, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, selectColumns+`
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	r, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return r, nil
}

// ListByUser returns the caller's connections, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Delete removes one of the caller's connections.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM email_connections WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchScanned updates last_scanned_at to NOW().
func (s *Store) TouchScanned(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_connections
		SET last_scanned_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// UpdateToken persists a refreshed token.
func (s *Store) UpdateToken(ctx context.Context, id string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE email_connections
		SET access_token = $1,
		    refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
		    token_expires_at = $3,
		    updated_at = NOW()
		WHERE id = $4
	`, tok.AccessToken, tok.RefreshToken, expiry, id)
	return err
}

// MarkStatus sets the status of a connection (active, expired, disconnected).
func (s *Store) MarkStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_connections
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	return err
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.UserID, &r.Provider, &r.EmailAddress, &r.AccessToken, &r.RefreshToken,
		&r.TokenExpiresAt, &r.Status, &r.LastScannedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Provider, &r.EmailAddress, &r.AccessToken, &r.RefreshToken,
			&r.TokenExpiresAt, &r.Status, &r.LastScannedAt, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
