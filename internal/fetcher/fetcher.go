// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetcher retrieves URLs and extracts readable text under a
// global concurrency cap. A failed fetch is final for that URL within
// the run; there are no retries at this layer.
// Implements: prd004-fetch;
//
//	docs/ARCHITECTURE § Fetch.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/pkg/types"
)

// Fetcher downloads pages with a shared bounded worker pool. The
// semaphore is the only resource shared across concurrent fetches, so a
// buffered channel is sufficient for safety.
type Fetcher struct {
	client *http.Client
	cfg    types.FetchConfig
	logger *zap.Logger
	sem    chan struct{}
}

// New builds a fetcher whose concurrency cap applies across all calls,
// however many URLs are queued.
func New(client *http.Client, cfg types.FetchConfig, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.Concurrency),
	}
}

// FetchAll retrieves every search result concurrently, bounded by the
// pool, and returns one FetchedDocument per input in input order. A
// fetch failure yields a document with empty text and a populated
// extraction error rather than dropping the entry.
func (f *Fetcher) FetchAll(ctx context.Context, results []types.SearchResult) []types.FetchedDocument {
	docs := make([]types.FetchedDocument, len(results))
	var wg sync.WaitGroup

	for i, r := range results {
		wg.Add(1)
		go func(i int, r types.SearchResult) {
			defer wg.Done()

			select {
			case f.sem <- struct{}{}:
				defer func() { <-f.sem }()
			case <-ctx.Done():
				docs[i] = failedDocument(r, ctx.Err())
				return
			}

			docs[i] = f.fetchOne(ctx, r)
		}(i, r)
	}

	wg.Wait()
	return docs
}

// fetchOne downloads and extracts a single URL under its own timeout.
func (f *Fetcher) fetchOne(ctx context.Context, r types.SearchResult) types.FetchedDocument {
	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, r.SourceURL, nil)
	if err != nil {
		return failedDocument(r, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return failedDocument(r, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failedDocument(r, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !textContent(contentType) {
		return failedDocument(r, fmt.Errorf("non-text content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.cfg.MaxDocumentBytes)))
	if err != nil {
		return failedDocument(r, fmt.Errorf("reading body: %w", err))
	}

	var text string
	if strings.Contains(contentType, "text/plain") {
		text = collapseWhitespace(string(body))
	} else {
		text, err = ExtractReadableText(strings.NewReader(string(body)))
		if err != nil {
			return failedDocument(r, fmt.Errorf("extracting text: %w", err))
		}
	}

	if strings.TrimSpace(text) == "" {
		return failedDocument(r, fmt.Errorf("no readable text extracted"))
	}

	f.logger.Debug("fetched",
		zap.String("url", r.SourceURL),
		zap.Int("content_length", len(text)))

	return types.FetchedDocument{
		SourceURL:     r.SourceURL,
		Title:         r.Title,
		ExtractedText: text,
		ContentLength: len(text),
	}
}

// failedDocument records a fetch failure for audit; it is excluded from
// ranking.
func failedDocument(r types.SearchResult, err error) types.FetchedDocument {
	return types.FetchedDocument{
		SourceURL:       r.SourceURL,
		Title:           r.Title,
		ExtractionError: err.Error(),
	}
}

// textContent reports whether the content type can yield readable text.
func textContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "text/plain") ||
		ct == ""
}
