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

package scan

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/gmail"
	"github.com/subtrack/ingestion/internal/graph"
	"github.com/subtrack/ingestion/internal/mailbox"
	"github.com/subtrack/ingestion/internal/oauth"
)

// Providers opens Gmail and Outlook sources with refreshing OAuth clients.
type Providers struct {
	OAuth        *oauth.Manager
	GraphBaseURL string
}

// Open implements SourceFactory.
func (p *Providers) Open(ctx context.Context, rec *connection.Record) (mailbox.Source, oauth2.TokenSource, error) {
	ts, err := p.OAuth.TokenSource(ctx, rec.Provider, rec.Token())
	if err != nil {
		return nil, nil, err
	}
	httpClient := oauth2.NewClient(ctx, ts)

	switch rec.Provider {
	case mailbox.ProviderGmail:
		c, err := gmail.NewClient(ctx, httpClient)
		if err != nil {
			return nil, nil, err
		}
		return c, ts, nil
	case mailbox.ProviderOutlook:
		return graph.NewFetcher(httpClient, p.GraphBaseURL), ts, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", oauth.ErrUnknownProvider, rec.Provider)
	}
}
