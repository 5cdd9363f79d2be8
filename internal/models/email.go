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

// Package models defines the data structures shared across the subtrack service.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned when a candidate email omits a required field.
var ErrMissingField = errors.New("candidate email missing required field")

// CandidateEmail is a single fetched email flattened to plain text.
// Date is free-form; an empty Date means the date is unknown.
type CandidateEmail struct {
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Body    string `json:"body"`
	Date    string `json:"date,omitempty"`
}

// UnmarshalJSON requires the subject and body keys to be present.
// Empty strings are accepted; a missing key is a contract violation.
func (c *CandidateEmail) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string  `json:"id"`
		Subject *string `json:"subject"`
		From    string  `json:"from"`
		Body    *string `json:"body"`
		Date    string  `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Subject == nil {
		return fmt.Errorf("%w: subject", ErrMissingField)
	}
	if raw.Body == nil {
		return fmt.Errorf("%w: body", ErrMissingField)
	}

	*c = CandidateEmail{
		ID:      raw.ID,
		Subject: *raw.Subject,
		From:    raw.From,
		Body:    *raw.Body,
		Date:    raw.Date,
	}
	return nil
}
