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

package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/models"
)

// graphMessage represents the selected fields of a Graph API message.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// messageList is a page of the /me/messages response.
type messageList struct {
	Value []graphMessage `json:"value"`
}

// parseMessageList converts a Graph message list into candidate emails.
func parseMessageList(body io.Reader) ([]models.CandidateEmail, error) {
	var page messageList
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode graph message list: %w", err)
	}

	emails := make([]models.CandidateEmail, 0, len(page.Value))
	for _, msg := range page.Value {
		emails = append(emails, toCandidate(msg))
	}
	return emails, nil
}

// toCandidate flattens a Graph message. The sender is the bare address,
// which is what the name fallback expects.
func toCandidate(msg graphMessage) models.CandidateEmail {
	content := msg.Body.Content
	if strings.EqualFold(msg.Body.ContentType, "html") || mailbox.LooksLikeHTML(content) {
		content = mailbox.PlainText(content)
	}

	return models.CandidateEmail{
		ID:      msg.ID,
		Subject: msg.Subject,
		From:    msg.From.EmailAddress.Address,
		Body:    strings.TrimSpace(content),
		Date:    msg.ReceivedDateTime,
	}
}
