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

// perplexityAPIBase is the Perplexity chat completions endpoint. Declared
// as a var so tests can substitute an httptest server.
var perplexityAPIBase = "https://api.perplexity.ai/chat/completions"

const perplexityModel = "sonar"

// PerplexityBackend queries the Perplexity API, a conversational search
// engine that answers natural-language questions with cited web sources.
type PerplexityBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the backend identifier.
func (b *PerplexityBackend) Name() string { return "perplexity" }

// Kind returns the backend kind.
func (b *PerplexityBackend) Kind() types.ProviderKind { return types.KindConversational }

// Search sends the question as-is; conversational backends expect
// natural language.
func (b *PerplexityBackend) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	reqBody := perplexityRequest{
		Model: perplexityModel,
		Messages: []perplexityMessage{
			{Role: "user", Content: query},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, decodeError(b.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, perplexityAPIBase, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	req.Header.Set("User-Agent", b.UserAgent)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, transportError(b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(b.Name(), resp.StatusCode)
	}

	var pr perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, decodeError(b.Name(), err)
	}

	now := time.Now().UTC()
	var results []types.SearchResult
	for _, sr := range pr.SearchResults {
		if sr.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			SourceURL:    sr.URL,
			Title:        sr.Title,
			Snippet:      sr.Snippet,
			ProviderTag:  b.Name(),
			ProviderKind: b.Kind(),
			RetrievedAt:  now,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

// Ping issues a one-result search to verify reachability and credentials.
func (b *PerplexityBackend) Ping(ctx context.Context) error {
	_, err := b.Search(ctx, "health check", Options{MaxResults: 1})
	return err
}

// Perplexity API JSON structures.
type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	SearchResults []perplexitySearchResult `json:"search_results"`
}

type perplexitySearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
