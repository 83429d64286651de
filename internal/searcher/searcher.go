// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package searcher fans a wave of sub-questions out to every configured
// provider concurrently, then merges and deduplicates the hits.
// Implements: prd003-search;
//
//	docs/ARCHITECTURE § Search.
package searcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/pkg/types"
)

// Output holds the merged results of one wave.
type Output struct {
	// Results maps sub-question ID to its deduplicated hits.
	Results map[string][]types.SearchResult

	// Unanswered lists sub-question IDs for which every provider failed.
	Unanswered []string

	// ProviderErrors collects recoverable provider failure messages.
	ProviderErrors []string
}

// SearchWave issues one query per provider per sub-question, all
// concurrently, bounded by the per-provider timeout. A provider failure
// degrades that sub-question to the remaining providers; only a total
// provider failure marks it unanswered. The wave completes only when
// every call has returned or timed out.
func SearchWave(ctx context.Context, wave []types.SubQuestion, backends []provider.Backend, cfg types.SearchConfig, logger *zap.Logger) Output {
	type callResult struct {
		subQuestionID string
		backend       string
		results       []types.SearchResult
		err           error
	}

	total := len(wave) * len(backends)
	ch := make(chan callResult, total)
	var wg sync.WaitGroup

	for _, sq := range wave {
		for _, b := range backends {
			wg.Add(1)
			go func(sq types.SubQuestion, b provider.Backend) {
				defer wg.Done()
				callCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
				defer cancel()

				query := ShapeQuery(sq.Text, b.Kind())
				results, err := b.Search(callCtx, query, provider.Options{
					MaxResults: cfg.MaxResultsPerProvider,
				})
				ch <- callResult{subQuestionID: sq.ID, backend: b.Name(), results: results, err: err}
			}(sq, b)
		}
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	perQuestion := make(map[string][]types.SearchResult, len(wave))
	failures := make(map[string]int, len(wave))
	var providerErrors []string

	for cr := range ch {
		if cr.err != nil {
			failures[cr.subQuestionID]++
			msg := fmt.Sprintf("%s: sub-question %s: %v", cr.backend, cr.subQuestionID, cr.err)
			providerErrors = append(providerErrors, msg)
			logger.Warn("provider call failed",
				zap.String("provider", cr.backend),
				zap.String("sub_question", cr.subQuestionID),
				zap.Error(cr.err))
			continue
		}
		perQuestion[cr.subQuestionID] = append(perQuestion[cr.subQuestionID], cr.results...)
	}

	out := Output{
		Results:        make(map[string][]types.SearchResult, len(wave)),
		ProviderErrors: providerErrors,
	}

	for _, sq := range wave {
		if failures[sq.ID] == len(backends) {
			out.Unanswered = append(out.Unanswered, sq.ID)
			continue
		}
		deduped, removed := Deduplicate(perQuestion[sq.ID])
		out.Results[sq.ID] = deduped
		logger.Info("sub-question searched",
			zap.String("sub_question", sq.ID),
			zap.Int("results", len(deduped)),
			zap.Int("duplicates_removed", removed))
	}
	return out
}

// Deduplicate merges hits that normalize to the same URL. Hits are
// considered in provider-kind priority order (conversational > semantic
// > keyword, reflecting typical result quality) so the first-seen winner
// comes from the best provider that returned it.
func Deduplicate(results []types.SearchResult) ([]types.SearchResult, int) {
	ordered := make([]types.SearchResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ProviderKind < ordered[j].ProviderKind
	})

	seen := make(map[string]int) // normalized URL -> index in deduped
	var deduped []types.SearchResult
	removed := 0

	for _, r := range ordered {
		key := NormalizeURL(r.SourceURL)
		if key == "" {
			continue
		}
		if idx, ok := seen[key]; ok {
			mergeInto(&deduped[idx], r)
			removed++
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, r)
	}
	return deduped, removed
}

// mergeInto fills empty fields of dst from the losing duplicate.
func mergeInto(dst *types.SearchResult, src types.SearchResult) {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
	}
	if dst.Snippet == "" && src.Snippet != "" {
		dst.Snippet = src.Snippet
	}
	if dst.RetrievedAt.IsZero() {
		dst.RetrievedAt = src.RetrievedAt
	}
}
