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

package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidState means a callback state is unknown, expired, already
// used, or was issued to a different user.
var ErrInvalidState = errors.New("invalid oauth state")

const (
	// DefaultStateTTL bounds how long a user has to finish consent.
	DefaultStateTTL = 10 * time.Minute

	stateKeyPrefix = "subtrack:oauth_state:"
)

// stateRedis is the slice of the Redis client the state store needs.
type stateRedis interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// StateStore issues single-use OAuth state nonces bound to a user.
type StateStore struct {
	rdb stateRedis
	ttl time.Duration
}

// NewStateStore creates a Redis-backed state store. A non-positive ttl
// selects DefaultStateTTL.
func NewStateStore(rdb stateRedis, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{rdb: rdb, ttl: ttl}
}

// Issue returns a fresh nonce for userID's next consent round trip.
func (s *StateStore) Issue(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	if err := s.rdb.Set(ctx, stateKeyPrefix+state, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

// Verify consumes state and checks it was issued to userID. A state can
// be verified once; a second attempt fails even for the right user.
func (s *StateStore) Verify(ctx context.Context, state, userID string) error {
	if state == "" {
		return ErrInvalidState
	}
	owner, err := s.rdb.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("load oauth state: %w", err)
	}
	if owner != userID {
		return ErrInvalidState
	}
	return nil
}
