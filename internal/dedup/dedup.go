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

// Package dedup remembers which mailbox messages have already produced a
// review candidate, using Redis SET NX with a TTL. Repeated scans of the
// same mailbox overlap almost entirely, so without it every rescan would
// re-queue the same candidates.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message is remembered.
	DefaultTTL = 30 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "subtrack:seen:"
)

// setNXer is the slice of the Redis client the filter needs.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Filter tracks which (user, message) pairs have already been queued.
type Filter struct {
	rdb setNXer
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb setNXer, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsNew returns true if the user's message has NOT been seen before.
// If true, the message is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, userID, messageID string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, Key(userID, messageID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Key returns the Redis key for a user's message.
func Key(userID, messageID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, messageID)
}
