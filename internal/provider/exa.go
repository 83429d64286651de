// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meshintel/deepresearch/pkg/types"
)

// exaAPIBase is the Exa search endpoint. Declared as a var so tests can
// substitute an httptest server.
var exaAPIBase = "https://api.exa.ai/search"

// ExaBackend queries the Exa API, a neural search engine that embeds the
// query and retrieves semantically similar documents.
type ExaBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the backend identifier.
func (b *ExaBackend) Name() string { return "exa" }

// Kind returns the backend kind.
func (b *ExaBackend) Kind() types.ProviderKind { return types.KindSemantic }

// Search sends the question in natural language; Exa's neural mode
// handles phrasing itself.
func (b *ExaBackend) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	reqBody := exaRequest{
		Query:      query,
		NumResults: maxResults,
		Type:       "neural",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, decodeError(b.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exaAPIBase, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.APIKey)
	req.Header.Set("User-Agent", b.UserAgent)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, transportError(b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(b.Name(), resp.StatusCode)
	}

	var er exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, decodeError(b.Name(), err)
	}

	now := time.Now().UTC()
	var results []types.SearchResult
	for _, r := range er.Results {
		if r.URL == "" {
			continue
		}
		snippet := r.Summary
		if snippet == "" {
			snippet = r.Text
		}
		results = append(results, types.SearchResult{
			SourceURL:    r.URL,
			Title:        r.Title,
			Snippet:      snippet,
			ProviderTag:  b.Name(),
			ProviderKind: b.Kind(),
			RetrievedAt:  now,
		})
	}
	return results, nil
}

// Ping issues a one-result search to verify reachability and credentials.
func (b *ExaBackend) Ping(ctx context.Context) error {
	_, err := b.Search(ctx, "health check", Options{MaxResults: 1})
	return err
}

// Exa API JSON structures.
type exaRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Type       string `json:"type"`
}

type exaResponse struct {
	Results []exaResult `json:"results"`
}

type exaResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
	Text    string `json:"text"`
}
