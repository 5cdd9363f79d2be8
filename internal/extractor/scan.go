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

package extractor

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/subtrack/ingestion/internal/models"
)

// Match is a successful extraction together with the email it came from.
type Match struct {
	Email        models.CandidateEmail
	Subscription models.ParsedSubscription
}

// ScanAll extracts every email and returns the hits ordered by confidence,
// highest first. Equal scores keep their input order. An empty or
// all-miss batch returns an empty slice.
func (e *Extractor) ScanAll(emails []models.CandidateEmail) []models.ParsedSubscription {
	matches := e.Matches(emails)
	out := make([]models.ParsedSubscription, len(matches))
	for i, m := range matches {
		out[i] = m.Subscription
	}
	return out
}

// Matches is ScanAll that keeps each hit paired with its source email.
func (e *Extractor) Matches(emails []models.CandidateEmail) []Match {
	// Each worker writes only its own slot, so no locking is needed.
	slots := make([]*Match, len(emails))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range emails {
		g.Go(func() error {
			if sub, ok := e.Extract(emails[i]); ok {
				slots[i] = &Match{Email: emails[i], Subscription: sub}
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	matches := make([]Match, 0, len(emails))
	for _, m := range slots {
		if m != nil {
			matches = append(matches, *m)
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Subscription.Confidence > matches[b].Subscription.Confidence
	})
	return matches
}
