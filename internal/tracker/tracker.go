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

// Package tracker keeps the subscriptions a user has confirmed, either
// entered by hand or accepted from a mailbox scan.
package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrack/ingestion/internal/models"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

const dateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when no subscription matches the id for the caller.
	ErrNotFound = errors.New("subscription not found")

	// ErrDuplicate is returned when accepting a candidate the caller already tracks.
	ErrDuplicate = errors.New("subscription already tracked")

	// ErrInvalid wraps field validation failures.
	ErrInvalid = errors.New("invalid subscription")
)

// Subscription is one tracked record. Cost is in the reference currency.
type Subscription struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	ApplicationName string              `json:"application_name"`
	DateSubscribed  string              `json:"date_subscribed"`
	DateEnding      *string             `json:"date_ending"`
	CostAED         decimal.Decimal     `json:"cost_aed"`
	BillingCycle    models.BillingCycle `json:"billing_cycle"`
	Status          string              `json:"status"`
	Notes           string              `json:"notes,omitempty"`
	AutoRenewal     bool                `json:"auto_renewal"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Input is the writable part of a subscription. Nil pointers mean "not
// supplied": defaults apply on create and the field is left alone on update.
type Input struct {
	ApplicationName *string              `json:"application_name"`
	DateSubscribed  *string              `json:"date_subscribed"`
	DateEnding      *string              `json:"date_ending"`
	CostAED         *decimal.Decimal     `json:"cost_aed"`
	BillingCycle    *models.BillingCycle `json:"billing_cycle"`
	Status          *string              `json:"status"`
	Notes           *string              `json:"notes"`
	AutoRenewal     *bool                `json:"auto_renewal"`
}

// validate checks every supplied field.
func (in Input) validate() error {
	if in.ApplicationName != nil && strings.TrimSpace(*in.ApplicationName) == "" {
		return fmt.Errorf("%w: application_name is empty", ErrInvalid)
	}
	if in.DateSubscribed != nil {
		if _, err := time.Parse(dateLayout, *in.DateSubscribed); err != nil {
			return fmt.Errorf("%w: date_subscribed must be YYYY-MM-DD", ErrInvalid)
		}
	}
	if in.DateEnding != nil && *in.DateEnding != "" {
		if _, err := time.Parse(dateLayout, *in.DateEnding); err != nil {
			return fmt.Errorf("%w: date_ending must be YYYY-MM-DD", ErrInvalid)
		}
	}
	if in.CostAED != nil && in.CostAED.IsNegative() {
		return fmt.Errorf("%w: cost_aed is negative", ErrInvalid)
	}
	if in.BillingCycle != nil {
		if _, err := models.ParseBillingCycle(string(*in.BillingCycle)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if in.Status != nil && !validStatus(*in.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, *in.Status)
	}
	return nil
}

// forCreate validates in and fills defaults for a new record.
func (in Input) forCreate(now time.Time) (Subscription, error) {
	if in.ApplicationName == nil {
		return Subscription{}, fmt.Errorf("%w: application_name is required", ErrInvalid)
	}
	if err := in.validate(); err != nil {
		return Subscription{}, err
	}

	s := Subscription{
		ApplicationName: strings.TrimSpace(*in.ApplicationName),
		DateSubscribed:  now.UTC().Format(dateLayout),
		CostAED:         decimal.Zero,
		BillingCycle:    models.CycleMonthly,
		Status:          StatusActive,
		AutoRenewal:     true,
	}
	if in.DateSubscribed != nil {
		s.DateSubscribed = *in.DateSubscribed
	}
	if in.DateEnding != nil && *in.DateEnding != "" {
		d := *in.DateEnding
		s.DateEnding = &d
	}
	if in.CostAED != nil {
		s.CostAED = *in.CostAED
	}
	if in.BillingCycle != nil {
		s.BillingCycle = *in.BillingCycle
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
	if in.Notes != nil {
		s.Notes = *in.Notes
	}
	if in.AutoRenewal != nil {
		s.AutoRenewal = *in.AutoRenewal
	}
	return s, nil
}

// FromCandidate turns an extracted candidate into create input. Missing
// cost, cycle and date fall back to the create defaults.
func FromCandidate(c models.ParsedSubscription) Input {
	name := c.ApplicationName
	in := Input{ApplicationName: &name}
	if c.CostAmount != nil {
		cost := decimal.NewFromFloat(*c.CostAmount).Round(2)
		in.CostAED = &cost
	}
	if c.BillingCycle != "" {
		cycle := c.BillingCycle
		in.BillingCycle = &cycle
	}
	if c.DateSubscribed != "" {
		date := c.DateSubscribed
		in.DateSubscribed = &date
	}
	if c.EmailSubject != "" {
		notes := "Detected from email: " + c.EmailSubject
		in.Notes = &notes
	}
	return in
}

func validStatus(s string) bool {
	return s == StatusActive || s == StatusCancelled || s == StatusExpired
}

// Stats summarises a user's tracked subscriptions.
type Stats struct {
	TotalSubscriptions  int     `json:"total_subscriptions"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	MonthlyCost         float64 `json:"monthly_cost"`
	YearlyCost          float64 `json:"yearly_cost"`
}

var (
	three  = decimal.NewFromInt(3)
	twelve = decimal.NewFromInt(12)
)

// ComputeStats totals the monthly-equivalent cost of active subscriptions.
// Yearly costs count a twelfth, quarterly a third; monthly and one-time
// costs count in full.
func ComputeStats(subs []Subscription) Stats {
	st := Stats{TotalSubscriptions: len(subs)}

	monthly := decimal.Zero
	for _, s := range subs {
		if s.Status != StatusActive {
			continue
		}
		st.ActiveSubscriptions++

		cost := s.CostAED
		switch s.BillingCycle {
		case models.CycleYearly:
			cost = cost.Div(twelve)
		case models.CycleQuarterly:
			cost = cost.Div(three)
		}
		monthly = monthly.Add(cost)
	}

	st.MonthlyCost = monthly.Round(2).InexactFloat64()
	st.YearlyCost = monthly.Mul(twelve).Round(2).InexactFloat64()
	return st
}
