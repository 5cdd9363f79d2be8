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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// mockStateRedis implements stateRedis with an in-memory map.
type mockStateRedis struct {
	mu   sync.Mutex
	vals map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMockStateRedis() *mockStateRedis {
	return &mockStateRedis{vals: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStateRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.vals[key] = fmt.Sprint(value)
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *mockStateRedis) GetDel(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	delete(m.vals, key)
	return redis.NewStringResult(v, nil)
}

// TestStateStore verifies nonces are bound to their user and single use.
func TestStateStore(t *testing.T) {
	rdb := newMockStateRedis()
	s := NewStateStore(rdb, 0)
	ctx := context.Background()

	state, err := s.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if state == "" || strings.Contains(state, "user-1") {
		t.Errorf("state = %q, want an opaque nonce", state)
	}
	if ttl := rdb.ttls[stateKeyPrefix+state]; ttl != DefaultStateTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultStateTTL)
	}

	if err := s.Verify(ctx, state, "user-1"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := s.Verify(ctx, state, "user-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reuse err = %v, want ErrInvalidState", err)
	}
}

// TestStateStore_Rejects verifies foreign, unknown and empty states.
func TestStateStore_Rejects(t *testing.T) {
	s := NewStateStore(newMockStateRedis(), time.Minute)
	ctx := context.Background()

	state, err := s.Issue(ctx, "user-2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name  string
		state string
		user  string
	}{
		{"other user", state, "user-1"},
		{"unknown", "not-a-state", "user-1"},
		{"empty", "", "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Verify(ctx, tt.state, tt.user); !errors.Is(err, ErrInvalidState) {
				t.Errorf("err = %v, want ErrInvalidState", err)
			}
		})
	}
}

// TestStateStore_RedisError verifies backend failures are not reported as
// an invalid state.
func TestStateStore_RedisError(t *testing.T) {
	rdb := newMockStateRedis()
	rdb.err = errors.New("connection refused")
	s := NewStateStore(rdb, time.Minute)

	if _, err := s.Issue(context.Background(), "user-1"); err == nil {
		t.Error("Issue: expected error")
	}
	err := s.Verify(context.Background(), "abc", "user-1")
	if err == nil || errors.Is(err, ErrInvalidState) {
		t.Errorf("Verify err = %v, want backend error", err)
	}
}
