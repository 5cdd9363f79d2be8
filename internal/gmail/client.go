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

// Package gmail lists subscription-related messages from a Gmail mailbox.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/models"
)

const (
	user = "me"

	// SearchQuery is the Gmail search used to narrow the mailbox.
	SearchQuery = "subscription OR invoice OR receipt OR billing OR payment"

	// fetchConcurrency bounds parallel message gets.
	fetchConcurrency = 10
)

// Client searches one user's Gmail mailbox.
type Client struct {
	srv *gm.Service
}

var _ mailbox.Source = (*Client)(nil)

// NewClient builds a Gmail client on top of an authorised HTTP client.
// Extra options (for example option.WithEndpoint) are passed through.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{srv: srv}, nil
}

// Search lists up to maxResults matching messages and fetches each in full.
// Individual message failures are logged and skipped; a rejected token
// fails the whole search.
func (c *Client) Search(ctx context.Context, maxResults int) ([]models.CandidateEmail, error) {
	if maxResults <= 0 {
		maxResults = mailbox.DefaultMaxMessages
	}

	list, err := c.srv.Users.Messages.List(user).
		Q(SearchQuery).
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		if isUnauthorized(err) {
			return nil, mailbox.ErrUnauthorized
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}

	refs := list.Messages
	if len(refs) > maxResults {
		refs = refs[:maxResults]
	}

	slots := make([]*models.CandidateEmail, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			msg, err := c.srv.Users.Messages.Get(user, ref.Id).Format("full").Context(gctx).Do()
			if err != nil {
				if isUnauthorized(err) {
					return mailbox.ErrUnauthorized
				}
				slog.Warn("gmail message fetch failed", "message_id", ref.Id, "error", err)
				return nil
			}
			email := toCandidate(msg)
			slots[i] = &email
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	emails := make([]models.CandidateEmail, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			emails = append(emails, *e)
		}
	}

	slog.Debug("gmail messages fetched", "listed", len(refs), "fetched", len(emails))
	return emails, nil
}

func isUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}
