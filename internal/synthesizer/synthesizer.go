// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesizer merges accepted sources into one validated finding
// per sub-question. Answer text comes from the reasoning engine; the
// confidence arithmetic is computed here so it stays deterministic and
// auditable.
// Implements: prd006-synthesis;
//
//	docs/ARCHITECTURE § Synthesis.
package synthesizer

import (
	"context"
	"fmt"
	"math"

	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/pkg/types"
)

// excerptRunes bounds how much of each source is handed to the engine.
const excerptRunes = 4000

// contradictionCeiling caps confidence while sources disagree.
const contradictionCeiling = 0.5

// lowCoverageCeiling caps confidence for findings with fewer than two
// accepted sources.
const lowCoverageCeiling = 0.4

// Synthesize cross-references the accepted sources for one sub-question
// and produces a finding. Contradictions between sources are recorded,
// never silently resolved. Documents supply the excerpt text; sources
// supply acceptance and relevance.
func Synthesize(ctx context.Context, engine reasoning.Engine, sq types.SubQuestion, sources []types.RankedSource, docs []types.FetchedDocument) (types.SynthesizedFinding, error) {
	textByURL := make(map[string]string, len(docs))
	for _, d := range docs {
		if !d.Failed() {
			textByURL[d.SourceURL] = d.ExtractedText
		}
	}

	var excerpts []reasoning.SourceExcerpt
	relevance := make(map[string]float64)
	domainByURL := make(map[string]string)
	for _, s := range sources {
		if !s.Accepted {
			continue
		}
		text, ok := textByURL[s.SourceURL]
		if !ok {
			continue
		}
		excerpts = append(excerpts, reasoning.SourceExcerpt{
			SourceURL: s.SourceURL,
			Title:     s.Title,
			Excerpt:   truncateRunes(text, excerptRunes),
			Relevance: s.RelevanceScore,
		})
		relevance[s.SourceURL] = s.RelevanceScore
		domainByURL[s.SourceURL] = s.Domain
	}

	if len(excerpts) == 0 {
		return types.SynthesizedFinding{}, fmt.Errorf("no accepted sources for sub-question %s", sq.ID)
	}

	syn, err := engine.Synthesize(ctx, sq.Text, excerpts)
	if err != nil {
		return types.SynthesizedFinding{}, fmt.Errorf("synthesizing %s: %w", sq.ID, err)
	}

	// Keep only URLs the engine was actually given.
	supporting := filterKnown(syn.SupportingSourceURLs, relevance)
	contradicting := filterKnown(syn.ContradictingSourceURLs, relevance)

	finding := types.SynthesizedFinding{
		SubQuestionID:           sq.ID,
		AnswerText:              syn.AnswerText,
		SupportingSourceURLs:    supporting,
		ContradictingSourceURLs: contradicting,
		LowCoverage:             len(excerpts) < 2,
	}
	finding.Confidence = confidence(finding, syn.Agreement, relevance, domainByURL)
	return finding, nil
}

// confidence combines independent corroboration, agreement, and the
// average relevance of supporting sources. Distinct domains count as
// independent; four or more saturate the corroboration term.
func confidence(f types.SynthesizedFinding, agreement float64, relevance map[string]float64, domainByURL map[string]string) float64 {
	domains := make(map[string]bool)
	var relSum float64
	for _, u := range f.SupportingSourceURLs {
		domains[domainByURL[u]] = true
		relSum += relevance[u]
	}

	var avgRel float64
	if len(f.SupportingSourceURLs) > 0 {
		avgRel = relSum / float64(len(f.SupportingSourceURLs))
	}

	corroboration := math.Min(1, float64(len(domains))/4)
	agreement = clamp01(agreement)

	c := 0.4*corroboration + 0.3*agreement + 0.3*avgRel
	if len(f.ContradictingSourceURLs) > 0 {
		c = math.Min(c, contradictionCeiling)
	}
	if f.LowCoverage {
		c = math.Min(c, lowCoverageCeiling)
	}
	return clamp01(c)
}

// filterKnown keeps URLs present in the excerpt set, preserving order
// and dropping duplicates.
func filterKnown(urls []string, known map[string]float64) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if _, ok := known[u]; !ok || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
