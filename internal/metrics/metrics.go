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

// Package metrics holds the Prometheus instruments for mailbox scans.
//
// Metrics:
//   - subtrack_scans_total{provider,outcome} - scans by result
//   - subtrack_emails_examined_total{provider} - emails run through the extractor
//   - subtrack_candidates_found_total{provider} - subscriptions detected
//   - subtrack_candidates_queued_total - candidates published for review
//   - subtrack_candidate_confidence - confidence score distribution
//   - subtrack_parse_requests_total{mode} - direct parse API calls
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeExpired = "expired"
	OutcomeError   = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	EmailsExamined   *prometheus.CounterVec
	CandidatesFound  *prometheus.CounterVec
	CandidatesQueued prometheus.Counter
	Confidence       prometheus.Histogram
	ParseRequests    *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_scans_total",
				Help: "Total number of mailbox scans",
			},
			[]string{"provider", "outcome"},
		),
		EmailsExamined: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_emails_examined_total",
				Help: "Total number of emails run through the extractor during scans",
			},
			[]string{"provider"},
		),
		CandidatesFound: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_candidates_found_total",
				Help: "Total number of subscriptions detected during scans",
			},
			[]string{"provider"},
		),
		CandidatesQueued: f.NewCounter(
			prometheus.CounterOpts{
				Name: "subtrack_candidates_queued_total",
				Help: "Total number of first-seen candidates published for review",
			},
		),
		Confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subtrack_candidate_confidence",
				Help:    "Confidence score of detected subscriptions",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		ParseRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_parse_requests_total",
				Help: "Total number of direct parse requests",
			},
			[]string{"mode"}, // "single" or "batch"
		),
	}
}

// ObserveScan records one finished scan.
func (m *Metrics) ObserveScan(provider, outcome string, examined int, confidences []int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(provider, outcome).Inc()
	if outcome != OutcomeOK {
		return
	}
	m.EmailsExamined.WithLabelValues(provider).Add(float64(examined))
	m.CandidatesFound.WithLabelValues(provider).Add(float64(len(confidences)))
	for _, c := range confidences {
		m.Confidence.Observe(float64(c))
	}
}

// ObserveQueued records candidates published for review.
func (m *Metrics) ObserveQueued(n int) {
	if m == nil {
		return
	}
	m.CandidatesQueued.Add(float64(n))
}

// ObserveParse records a direct parse request.
func (m *Metrics) ObserveParse(mode string) {
	if m == nil {
		return
	}
	m.ParseRequests.WithLabelValues(mode).Inc()
}
