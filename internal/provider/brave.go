// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/meshintel/deepresearch/pkg/types"
)

// braveAPIBase is the Brave web search endpoint. Declared as a var so
// tests can substitute an httptest server.
var braveAPIBase = "https://api.search.brave.com/res/v1/web/search"

// BraveBackend queries the Brave Search API, a classic keyword web
// search engine. The searcher hands it keyword-extracted queries rather
// than full natural-language questions.
type BraveBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the backend identifier.
func (b *BraveBackend) Name() string { return "brave" }

// Kind returns the backend kind.
func (b *BraveBackend) Kind() types.ProviderKind { return types.KindKeyword }

// Search runs a keyword web search.
func (b *BraveBackend) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", maxResults)},
	}
	reqURL := braveAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	req.Header.Set("User-Agent", b.UserAgent)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, transportError(b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(b.Name(), resp.StatusCode)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, decodeError(b.Name(), err)
	}

	now := time.Now().UTC()
	var results []types.SearchResult
	for _, r := range br.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			SourceURL:    r.URL,
			Title:        r.Title,
			Snippet:      r.Description,
			ProviderTag:  b.Name(),
			ProviderKind: b.Kind(),
			RetrievedAt:  now,
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify reachability and credentials.
func (b *BraveBackend) Ping(ctx context.Context) error {
	_, err := b.Search(ctx, "health check", Options{MaxResults: 1})
	return err
}

// Brave API JSON structures.
type braveResponse struct {
	Web braveWeb `json:"web"`
}

type braveWeb struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}
