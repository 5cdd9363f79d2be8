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

// Package extractor turns the subject, sender and body of an email into a
// confidence-scored subscription record, and ranks batches of emails.
//
// Extraction is pure: no I/O, no state between calls. An Extractor only
// holds its compiled catalog and may be shared across goroutines.
package extractor

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/subtrack/ingestion/internal/catalog"
	"github.com/subtrack/ingestion/internal/confidence"
	"github.com/subtrack/ingestion/internal/models"
)

var (
	// "Receipt from Acme <billing@acme.io>" -> "Acme"
	fromMarkerPattern = regexp.MustCompile(`(?i)from\s+([^<\s]+)`)
	// "Acme Billing <billing@acme.io>" -> "Acme Billing ", "billing@acme.io" -> "billing"
	senderPrefixPattern = regexp.MustCompile(`^([^<@]+)`)
)

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
}

// Config holds the extractor's dependencies.
type Config struct {
	Catalog *catalog.Compiled
	Weights confidence.Weights
	Workers int // batch concurrency; defaults to GOMAXPROCS
}

// Extractor applies a pattern catalog to candidate emails.
type Extractor struct {
	catalog *catalog.Compiled
	weights confidence.Weights
	workers int
}

// New creates an extractor. A nil catalog selects the built-in one and
// zero weights select confidence.DefaultWeights.
func New(cfg Config) *Extractor {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.MustDefault()
	}
	weights := cfg.Weights
	if weights == (confidence.Weights{}) {
		weights = confidence.DefaultWeights
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Extractor{
		catalog: cat,
		weights: weights,
		workers: workers,
	}
}

// Extract parses one email. It returns false when the email carries no
// subscription keyword or no application name can be resolved; both are
// ordinary outcomes, not errors.
func (e *Extractor) Extract(email models.CandidateEmail) (models.ParsedSubscription, bool) {
	subject, from, body := foldSpaces(email.Subject), foldSpaces(email.From), foldSpaces(email.Body)
	combined := subject + " " + body
	folded := strings.ToLower(combined)

	// Hard gate: no keyword, not a subscription email.
	if !e.hasKeyword(folded) {
		return models.ParsedSubscription{}, false
	}

	name := e.applicationName(subject, from, body)
	if name == "" {
		return models.ParsedSubscription{}, false
	}

	cost, hasCost := e.cost(combined)
	cycle := e.billingCycle(combined)

	result := models.ParsedSubscription{
		ApplicationName: name,
		BillingCycle:    cycle,
		DateSubscribed:  normalizeDate(email.Date),
		Confidence:      e.weights.Score(true, hasCost, cycle != "", true),
		EmailSubject:    email.Subject,
		EmailFrom:       email.From,
	}
	if hasCost {
		result.CostAmount = &cost
	}
	return result, true
}

// foldSpaces maps every Unicode space separator (NBSP, thin space, ...)
// to an ASCII space, since RE2 \s only matches ASCII whitespace.
func foldSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r != ' ' && unicode.Is(unicode.Zs, r) {
			return ' '
		}
		return r
	}, s)
}

// hasKeyword reports whether any catalog keyword is a substring of text.
// text must already be case-folded.
func (e *Extractor) hasKeyword(text string) bool {
	for _, k := range e.catalog.Keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// applicationName resolves the service name: known services first, then
// the sender's display name.
func (e *Extractor) applicationName(subject, from, body string) string {
	search := strings.ToLower(subject + " " + from + " " + body)
	for _, svc := range e.catalog.Services {
		for _, alias := range svc.Aliases {
			if strings.Contains(search, alias) {
				return svc.Name
			}
		}
	}
	return senderName(from)
}

// senderName derives a display name from a From header.
func senderName(from string) string {
	m := fromMarkerPattern.FindStringSubmatch(from)
	if m == nil {
		m = senderPrefixPattern.FindStringSubmatch(from)
	}
	if m == nil {
		return ""
	}

	words := strings.FieldsFunc(strings.TrimSpace(m[1]), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.'
	})
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// cost finds the first amount, reference currency first, then each
// foreign currency in catalog order. A numeral that does not parse is
// treated as no match for that currency.
func (e *Extractor) cost(text string) (float64, bool) {
	if raw, ok := e.catalog.Reference.FindAmount(text); ok {
		if amount, err := strconv.ParseFloat(raw, 64); err == nil {
			return amount, true
		}
	}

	for _, cur := range e.catalog.Foreign {
		raw, ok := cur.FindAmount(text)
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return amount * cur.Multiplier, true
	}

	return 0, false
}

// billingCycle returns the first cycle whose pattern matches, or "".
func (e *Extractor) billingCycle(text string) models.BillingCycle {
	for _, c := range e.catalog.Cycles {
		if c.Match(text) {
			return c.Cycle
		}
	}
	return ""
}

// normalizeDate converts a free-form date to YYYY-MM-DD in UTC. Anything
// unparseable yields "".
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// Mail headers often carry a trailing zone comment: "... +0000 (UTC)".
	if open := strings.LastIndex(raw, " ("); open != -1 && strings.HasSuffix(raw, ")") {
		raw = strings.TrimSpace(raw[:open])
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	return ""
}
