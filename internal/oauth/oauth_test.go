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

package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func testConfig() Config {
	return Config{
		AppURL:  "https://app.example.com/",
		Gmail:   Credentials{ClientID: "g-id", ClientSecret: "g-secret"},
		Outlook: Credentials{ClientID: "o-id", ClientSecret: "o-secret"},
	}
}

// TestAuthURL verifies provider-specific auth URL parameters.
func TestAuthURL(t *testing.T) {
	m := NewManager(testConfig())

	tests := []struct {
		provider string
		host     string
		redirect string
		want     map[string]string
	}{
		{
			provider: "gmail",
			host:     "accounts.google.com",
			redirect: "https://app.example.com/api/auth/gmail/callback",
			want:     map[string]string{"access_type": "offline", "prompt": "consent", "client_id": "g-id", "state": "user-1"},
		},
		{
			provider: "outlook",
			host:     "login.microsoftonline.com",
			redirect: "https://app.example.com/api/auth/outlook/callback",
			want:     map[string]string{"response_mode": "query", "client_id": "o-id", "state": "user-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			raw, err := m.AuthURL(tt.provider, "user-1")
			if err != nil {
				t.Fatalf("AuthURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse url: %v", err)
			}
			if u.Host != tt.host {
				t.Errorf("host = %q, want %q", u.Host, tt.host)
			}
			q := u.Query()
			if q.Get("redirect_uri") != tt.redirect {
				t.Errorf("redirect_uri = %q, want %q", q.Get("redirect_uri"), tt.redirect)
			}
			for k, v := range tt.want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
		})
	}
}

// TestAuthURL_Errors verifies unknown and unconfigured providers.
func TestAuthURL_Errors(t *testing.T) {
	m := NewManager(Config{AppURL: "https://app.example.com"})

	if _, err := m.AuthURL("yahoo", "s"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
	if _, err := m.AuthURL("gmail", "s"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if m.Configured("outlook") {
		t.Error("outlook should not be configured without credentials")
	}
}

// TestExchange verifies the code exchange against a fake token endpoint.
func TestExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "auth-code" {
			t.Errorf("code = %q, want auth-code", r.Form.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	m := NewManager(testConfig())
	m.configs["outlook"].Endpoint = oauth2.Endpoint{
		AuthURL:   server.URL + "/authorize",
		TokenURL:  server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	tok, err := m.Exchange(context.Background(), "outlook", "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" {
		t.Errorf("token = %+v", tok)
	}
	if tok.Expiry.IsZero() {
		t.Error("expected expiry to be set from expires_in")
	}
}

// TestAccountEmail verifies address lookup for both response shapes.
func TestAccountEmail(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		body     string
		want     string
	}{
		{"google userinfo", "gmail", `{"email":"a@gmail.com"}`, "a@gmail.com"},
		{"graph mail", "outlook", `{"mail":"b@contoso.com","userPrincipalName":"b_upn@contoso.com"}`, "b@contoso.com"},
		{"graph upn fallback", "outlook", `{"mail":null,"userPrincipalName":"c@contoso.com"}`, "c@contoso.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer tok" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			m := NewManager(testConfig())
			m.userInfoURLs[tt.provider] = server.URL

			got, err := m.AccountEmail(context.Background(), tt.provider, &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
			if err != nil {
				t.Fatalf("AccountEmail: %v", err)
			}
			if got != tt.want {
				t.Errorf("email = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAccountEmail_Rejected verifies a non-200 response is an error.
func TestAccountEmail_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	m := NewManager(testConfig())
	m.userInfoURLs["gmail"] = server.URL

	if _, err := m.AccountEmail(context.Background(), "gmail", &oauth2.Token{AccessToken: "tok"}); err == nil {
		t.Fatal("expected error for 403")
	}
}
