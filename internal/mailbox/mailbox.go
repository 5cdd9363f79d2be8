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

// Package mailbox defines the provider-agnostic contract for fetching
// candidate emails from a connected account.
package mailbox

import (
	"context"
	"errors"

	"github.com/subtrack/ingestion/internal/models"
)

const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"

	// DefaultMaxMessages caps a single scan.
	DefaultMaxMessages = 100
)

// ErrUnauthorized means the provider rejected the access token. The user
// must reconnect the account.
var ErrUnauthorized = errors.New("mailbox access token rejected")

// Source lists subscription-looking emails from one connected mailbox,
// already flattened to plain text.
type Source interface {
	Search(ctx context.Context, maxResults int) ([]models.CandidateEmail, error)
}

// ValidProvider reports whether p names a supported provider.
func ValidProvider(p string) bool {
	return p == ProviderGmail || p == ProviderOutlook
}
