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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/subtrack/ingestion/internal/mailbox"
)

// TestFetcher_Search verifies query construction and message mapping.
func TestFetcher_Search(t *testing.T) {
	var gotQuery map[string][]string
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		data, _ := json.Marshal(map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"id":               "AAMk-1",
					"subject":          "Your Netflix subscription",
					"from":             map[string]interface{}{"emailAddress": map[string]string{"address": "info@netflix.com", "name": "Netflix"}},
					"receivedDateTime": "2024-03-15T10:00:00Z",
					"body":             map[string]string{"contentType": "html", "content": "<p>Total</p><p>AED&nbsp;39.00 monthly</p>"},
				},
				{
					"id":               "AAMk-2",
					"subject":          "Receipt",
					"from":             map[string]interface{}{"emailAddress": map[string]string{"address": "billing@acme.io"}},
					"receivedDateTime": "2024-03-16T08:30:00Z",
					"body":             map[string]string{"contentType": "text", "content": "  thanks  "},
				},
			},
		})
		w.Write(data)
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), server.URL+"/")
	emails, err := f.Search(context.Background(), 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/me/messages" {
		t.Errorf("path = %q, want /me/messages", gotPath)
	}
	if top := gotQuery["$top"]; len(top) != 1 || top[0] != "25" {
		t.Errorf("$top = %v, want [25]", top)
	}
	filter := strings.Join(gotQuery["$filter"], "")
	for _, term := range subjectTerms {
		if !strings.Contains(filter, "contains(subject,'"+term+"')") {
			t.Errorf("$filter %q missing term %q", filter, term)
		}
	}

	if len(emails) != 2 {
		t.Fatalf("got %d emails, want 2", len(emails))
	}

	first := emails[0]
	if first.ID != "AAMk-1" || first.From != "info@netflix.com" || first.Date != "2024-03-15T10:00:00Z" {
		t.Errorf("first = %+v", first)
	}
	if first.Body != "Total AED 39.00 monthly" {
		t.Errorf("body = %q, want flattened html", first.Body)
	}
	if emails[1].Body != "thanks" {
		t.Errorf("plain body = %q, want trimmed", emails[1].Body)
	}
}

// TestFetcher_Search_Unauthorized verifies 401 maps to ErrUnauthorized.
func TestFetcher_Search_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), server.URL)
	_, err := f.Search(context.Background(), 10)
	if !errors.Is(err, mailbox.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// TestFetcher_Search_ServerError verifies non-200 responses surface as errors.
func TestFetcher_Search_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":"ServiceUnavailable"}}`))
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), server.URL)
	_, err := f.Search(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if errors.Is(err, mailbox.ErrUnauthorized) {
		t.Error("503 should not be reported as unauthorized")
	}
}

// TestFetcher_Search_DefaultCap verifies a non-positive cap falls back to the default.
func TestFetcher_Search_DefaultCap(t *testing.T) {
	var top string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		top = r.URL.Query().Get("$top")
		w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), server.URL)
	emails, err := f.Search(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if top != "100" {
		t.Errorf("$top = %q, want 100", top)
	}
	if len(emails) != 0 {
		t.Errorf("got %d emails, want 0", len(emails))
	}
}
