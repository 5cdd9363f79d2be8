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

package models

import "fmt"

// BillingCycle is how often a subscription charges. The zero value means
// no cycle was detected.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
	CycleOneTime   BillingCycle = "one-time"
)

// ParseBillingCycle validates a billing cycle string.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch c := BillingCycle(s); c {
	case CycleMonthly, CycleQuarterly, CycleYearly, CycleOneTime:
		return c, nil
	default:
		return "", fmt.Errorf("unknown billing cycle %q", s)
	}
}

// ParsedSubscription is a subscription extracted from one email.
//
// CostAmount is in reference units (AED). A nil CostAmount means no cost
// was found; zero is a valid extracted amount. DateSubscribed is a
// YYYY-MM-DD date or empty when unknown.
type ParsedSubscription struct {
	ApplicationName string       `json:"application_name"`
	CostAmount      *float64     `json:"cost_aed,omitempty"`
	BillingCycle    BillingCycle `json:"billing_cycle,omitempty"`
	DateSubscribed  string       `json:"date_subscribed,omitempty"`
	Confidence      int          `json:"confidence"`
	EmailSubject    string       `json:"email_subject,omitempty"`
	EmailFrom       string       `json:"email_from,omitempty"`
}

// ScanCandidate pairs an extraction with the mailbox message it came from.
// This is the payload published to the review queue.
type ScanCandidate struct {
	UserID       string             `json:"user_id"`
	ConnectionID string             `json:"connection_id"`
	Provider     string             `json:"provider"`
	MessageID    string             `json:"message_id"`
	Subscription ParsedSubscription `json:"subscription"`
	ScannedAt    string             `json:"scanned_at"`
}
