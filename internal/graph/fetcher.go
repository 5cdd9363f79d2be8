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

// Package graph lists subscription-related Outlook messages for the signed-in
// user through the Microsoft Graph API.
package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/models"
)

// DefaultBaseURL is the Graph API v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// subjectTerms are OR-ed into the $filter of the message search.
var subjectTerms = []string{"subscription", "invoice", "receipt", "billing", "payment"}

// Fetcher searches one user's Outlook mailbox. httpClient must already
// carry the user's delegated OAuth token.
type Fetcher struct {
	httpClient   *http.Client
	graphBaseURL string
}

var _ mailbox.Source = (*Fetcher)(nil)

// NewFetcher creates an Outlook message fetcher.
func NewFetcher(httpClient *http.Client, graphBaseURL string) *Fetcher {
	if graphBaseURL == "" {
		graphBaseURL = DefaultBaseURL
	}
	return &Fetcher{
		httpClient:   httpClient,
		graphBaseURL: strings.TrimSuffix(graphBaseURL, "/"),
	}
}

// Search returns up to maxResults messages whose subject mentions a billing term.
func (f *Fetcher) Search(ctx context.Context, maxResults int) ([]models.CandidateEmail, error) {
	if maxResults <= 0 {
		maxResults = mailbox.DefaultMaxMessages
	}

	clauses := make([]string, len(subjectTerms))
	for i, term := range subjectTerms {
		clauses[i] = fmt.Sprintf("contains(subject,'%s')", term)
	}

	params := url.Values{}
	params.Set("$filter", strings.Join(clauses, " or "))
	params.Set("$top", strconv.Itoa(maxResults))
	params.Set("$select", "id,subject,from,receivedDateTime,body")

	listURL := fmt.Sprintf("%s/me/messages?%s", f.graphBaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, mailbox.ErrUnauthorized
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("outlook message search error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("graph API returned HTTP %d for message search", resp.StatusCode)
	}

	emails, err := parseMessageList(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	if len(emails) > maxResults {
		emails = emails[:maxResults]
	}

	slog.Debug("outlook messages fetched", "count", len(emails))
	return emails, nil
}
