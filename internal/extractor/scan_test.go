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
	"testing"

	"github.com/subtrack/ingestion/internal/models"
)

// scanFixture returns emails scoring 50, 100, 50, 80 and one miss.
func scanFixture() []models.CandidateEmail {
	return []models.CandidateEmail{
		{ID: "a", Subject: "Membership update", From: "Alpha Club <a@alpha.io>", Body: "Thanks for being a member."},
		{ID: "b", Subject: "Your Netflix subscription receipt", From: "billing@netflix.com",
			Body: "Your payment of AED 49.99 for your monthly plan was received.", Date: "2025-01-15T00:00:00Z"},
		{ID: "c", Subject: "Invoice available", From: "Beta Corp <b@beta.io>", Body: "Your invoice is ready."},
		{ID: "d", Subject: "Spotify Premium", From: "no-reply@spotify.com", Body: "Renewal charged: $9.99."},
		{ID: "e", Subject: "Lunch?", From: "pal@example.com", Body: "See you at noon"},
	}
}

// TestScanAll_OrderAndStability verifies confidence-descending order with
// ties kept in input order, for several worker counts.
func TestScanAll_OrderAndStability(t *testing.T) {
	wantNames := []string{"Netflix", "Spotify", "Alpha Club", "Beta Corp"}
	wantScores := []int{100, 80, 50, 50}

	for _, workers := range []int{1, 2, 8} {
		e := New(Config{Workers: workers})
		got := e.ScanAll(scanFixture())

		if len(got) != len(wantNames) {
			t.Fatalf("workers=%d: got %d results, want %d", workers, len(got), len(wantNames))
		}
		for i := range got {
			if got[i].ApplicationName != wantNames[i] || got[i].Confidence != wantScores[i] {
				t.Errorf("workers=%d: result[%d] = %s/%d, want %s/%d",
					workers, i, got[i].ApplicationName, got[i].Confidence, wantNames[i], wantScores[i])
			}
		}
	}
}

// TestScanAll_TieOrderFollowsInput verifies swapping two tied emails swaps
// their output positions.
func TestScanAll_TieOrderFollowsInput(t *testing.T) {
	emails := scanFixture()
	emails[0], emails[2] = emails[2], emails[0]

	got := New(Config{}).ScanAll(emails)
	if got[2].ApplicationName != "Beta Corp" || got[3].ApplicationName != "Alpha Club" {
		t.Errorf("tie order = %s, %s; want Beta Corp, Alpha Club", got[2].ApplicationName, got[3].ApplicationName)
	}
}

// TestScanAll_Empty verifies empty and all-miss batches.
func TestScanAll_Empty(t *testing.T) {
	e := New(Config{})

	if got := e.ScanAll(nil); got == nil || len(got) != 0 {
		t.Errorf("ScanAll(nil) = %#v, want empty slice", got)
	}

	misses := []models.CandidateEmail{
		{Subject: "Hello friend", Body: "How are you?"},
		{Subject: "", Body: ""},
	}
	if got := e.ScanAll(misses); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

// TestMatches_KeepsSourceEmail verifies each match carries its email.
func TestMatches_KeepsSourceEmail(t *testing.T) {
	matches := New(Config{}).Matches(scanFixture())

	wantIDs := []string{"b", "d", "a", "c"}
	for i, m := range matches {
		if m.Email.ID != wantIDs[i] {
			t.Errorf("match[%d].Email.ID = %q, want %q", i, m.Email.ID, wantIDs[i])
		}
	}
}
