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

// Package oauth runs the delegated authorization-code flow for the
// supported mailbox providers.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/subtrack/ingestion/internal/mailbox"
)

const (
	gmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"
	googleEmailScope   = "https://www.googleapis.com/auth/userinfo.email"

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	graphMeURL        = "https://graph.microsoft.com/v1.0/me"
)

var (
	// ErrUnknownProvider is returned for a provider name other than gmail or outlook.
	ErrUnknownProvider = errors.New("unknown mail provider")

	// ErrNotConfigured is returned when a provider has no client credentials.
	ErrNotConfigured = errors.New("mail provider is not configured")
)

// Credentials are the OAuth client credentials of one provider app registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Config holds the client credentials and the public base URL the
// callbacks are served under.
type Config struct {
	AppURL  string
	Gmail   Credentials
	Outlook Credentials
}

// Manager builds auth URLs, exchanges codes and produces refreshing
// HTTP clients per provider.
type Manager struct {
	configs      map[string]*oauth2.Config
	userInfoURLs map[string]string
	httpClient   *http.Client
}

// NewManager creates a Manager. Providers with empty credentials are
// left unconfigured.
func NewManager(cfg Config) *Manager {
	base := strings.TrimSuffix(cfg.AppURL, "/")
	m := &Manager{
		configs: make(map[string]*oauth2.Config),
		userInfoURLs: map[string]string{
			mailbox.ProviderGmail:   googleUserInfoURL,
			mailbox.ProviderOutlook: graphMeURL,
		},
		httpClient: http.DefaultClient,
	}

	if cfg.Gmail.ClientID != "" && cfg.Gmail.ClientSecret != "" {
		m.configs[mailbox.ProviderGmail] = &oauth2.Config{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  base + "/api/auth/gmail/callback",
			Scopes:       []string{gmailReadonlyScope, googleEmailScope},
		}
	}

	if cfg.Outlook.ClientID != "" && cfg.Outlook.ClientSecret != "" {
		m.configs[mailbox.ProviderOutlook] = &oauth2.Config{
			ClientID:     cfg.Outlook.ClientID,
			ClientSecret: cfg.Outlook.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			RedirectURL:  base + "/api/auth/outlook/callback",
			Scopes:       []string{"Mail.Read", "User.Read", "offline_access"},
		}
	}

	return m
}

// Configured reports whether provider has client credentials.
func (m *Manager) Configured(provider string) bool {
	_, ok := m.configs[provider]
	return ok
}

func (m *Manager) config(provider string) (*oauth2.Config, error) {
	if !mailbox.ValidProvider(provider) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	c, ok := m.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
	}
	return c, nil
}

// AuthURL returns the consent-screen URL. state is echoed back to the callback.
func (m *Manager) AuthURL(provider, state string) (string, error) {
	c, err := m.config(provider)
	if err != nil {
		return "", err
	}

	switch provider {
	case mailbox.ProviderGmail:
		// refresh tokens are only issued on offline access with a forced consent
		return c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
	default:
		return c.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query")), nil
	}
}

// Exchange trades an authorization code for a token.
func (m *Manager) Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	c, err := m.config(provider)
	if err != nil {
		return nil, err
	}
	tok, err := c.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange %s code: %w", provider, err)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires.
func (m *Manager) TokenSource(ctx context.Context, provider string, tok *oauth2.Token) (oauth2.TokenSource, error) {
	c, err := m.config(provider)
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(tok, c.TokenSource(m.clientContext(ctx), tok)), nil
}

// AccountEmail looks up the mailbox address the token belongs to.
func (m *Manager) AccountEmail(ctx context.Context, provider string, tok *oauth2.Token) (string, error) {
	infoURL, ok := m.userInfoURLs[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch account info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("account info returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email             string `json:"email"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode account info: %w", err)
	}

	for _, v := range []string{info.Email, info.Mail, info.UserPrincipalName} {
		if v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("account info for %s has no email address", provider)
}

// clientContext makes the oauth2 package use our HTTP client for token calls.
func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
