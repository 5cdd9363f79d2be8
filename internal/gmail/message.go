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

package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"

	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/models"
)

// toCandidate maps a full Gmail message onto a CandidateEmail.
func toCandidate(msg *gm.Message) models.CandidateEmail {
	email := models.CandidateEmail{ID: msg.Id}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				email.Subject = h.Value
			case "from":
				email.From = h.Value
			case "date":
				email.Date = h.Value
			}
		}
		email.Body = bodyText(msg.Payload)
	}

	if email.Date == "" && msg.InternalDate > 0 {
		email.Date = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}
	if email.Body == "" {
		email.Body = msg.Snippet
	}
	return email
}

// bodyText prefers a text/plain part anywhere in the tree and falls back
// to the first flattened text/html part.
func bodyText(payload *gm.MessagePart) string {
	if s := findPart(payload, "text/plain"); s != "" {
		return strings.TrimSpace(s)
	}
	if s := findPart(payload, "text/html"); s != "" {
		return mailbox.PlainText(s)
	}
	return ""
}

func findPart(part *gm.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, ok := decodeBody(part.Body.Data); ok {
			return data
		}
	}
	for _, child := range part.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, padded or not.
func decodeBody(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}
