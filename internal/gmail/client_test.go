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
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/subtrack/ingestion/internal/mailbox"
)

const listPath = "/gmail/v1/users/me/messages"

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), server.Client(), option.WithEndpoint(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// TestClient_Search verifies listing, full fetch and header mapping.
func TestClient_Search(t *testing.T) {
	var gotQuery, gotMax string

	messages := map[string]interface{}{
		"m1": map[string]interface{}{
			"id": "m1",
			"payload": map[string]interface{}{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Your Spotify receipt"},
					{"name": "From", "value": "Spotify <no-reply@spotify.com>"},
					{"name": "Date", "value": "Fri, 15 Mar 2024 10:00:00 +0000"},
				},
				"parts": []map[string]interface{}{
					{"mimeType": "text/html", "body": map[string]string{"data": b64("<p>ignored</p>")}},
					{"mimeType": "text/plain", "body": map[string]string{"data": b64("Premium AED 21.99 monthly\n")}},
				},
			},
		},
		"m2": map[string]interface{}{
			"id":           "m2",
			"internalDate": "1710496800000",
			"payload": map[string]interface{}{
				"mimeType": "text/html",
				"headers": []map[string]string{
					{"name": "subject", "value": "Invoice"},
				},
				"body": map[string]string{"data": b64("<div>Total <b>$5</b></div>")},
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == listPath:
			gotQuery = r.URL.Query().Get("q")
			gotMax = r.URL.Query().Get("maxResults")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}},
			})
		case strings.HasPrefix(r.URL.Path, listPath+"/"):
			id := strings.TrimPrefix(r.URL.Path, listPath+"/")
			msg, ok := messages[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(msg)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	emails, err := newTestClient(t, server).Search(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery != SearchQuery {
		t.Errorf("q = %q, want %q", gotQuery, SearchQuery)
	}
	if gotMax != "50" {
		t.Errorf("maxResults = %q, want 50", gotMax)
	}
	if len(emails) != 2 {
		t.Fatalf("got %d emails, want 2", len(emails))
	}

	first := emails[0]
	if first.ID != "m1" || first.Subject != "Your Spotify receipt" || first.From != "Spotify <no-reply@spotify.com>" {
		t.Errorf("first = %+v", first)
	}
	if first.Body != "Premium AED 21.99 monthly" {
		t.Errorf("body = %q, want text/plain part", first.Body)
	}
	if first.Date != "Fri, 15 Mar 2024 10:00:00 +0000" {
		t.Errorf("date = %q", first.Date)
	}

	second := emails[1]
	if second.Body != "Total $5" {
		t.Errorf("html body = %q, want flattened", second.Body)
	}
	if second.Date != "2024-03-15T10:00:00Z" {
		t.Errorf("date = %q, want internalDate fallback", second.Date)
	}
}

// TestClient_Search_SkipsFailedMessages verifies a single failed get does not fail the scan.
func TestClient_Search_SkipsFailedMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case listPath:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []map[string]string{{"id": "ok"}, {"id": "gone"}},
			})
		case listPath + "/ok":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "ok",
				"snippet": "snippet text",
				"payload": map[string]interface{}{"mimeType": "text/plain"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	emails, err := newTestClient(t, server).Search(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emails) != 1 || emails[0].ID != "ok" {
		t.Fatalf("emails = %+v, want only ok", emails)
	}
	if emails[0].Body != "snippet text" {
		t.Errorf("body = %q, want snippet fallback", emails[0].Body)
	}
}

// TestClient_Search_Unauthorized verifies 401 maps to ErrUnauthorized.
func TestClient_Search_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Search(context.Background(), 10)
	if !errors.Is(err, mailbox.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// TestDecodeBody verifies padded and unpadded base64url input.
func TestDecodeBody(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("hi?"))
	raw := base64.RawURLEncoding.EncodeToString([]byte("hi"))

	if got, ok := decodeBody(padded); !ok || got != "hi?" {
		t.Errorf("decodeBody(padded) = %q, %v", got, ok)
	}
	if got, ok := decodeBody(raw); !ok || got != "hi" {
		t.Errorf("decodeBody(raw) = %q, %v", got, ok)
	}
	if _, ok := decodeBody("!!!"); ok {
		t.Error("expected invalid data to fail")
	}
}

// TestBodyText_Empty verifies a payload without text parts yields nothing.
func TestBodyText_Empty(t *testing.T) {
	p := &gm.MessagePart{MimeType: "multipart/mixed", Parts: []*gm.MessagePart{{MimeType: "application/pdf"}}}
	if got := bodyText(p); got != "" {
		t.Errorf("bodyText = %q, want empty", got)
	}
}
