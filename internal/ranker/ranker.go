// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ranker scores fetched documents against a sub-question and
// applies the source-diversity filter. Relevance is the cosine
// similarity of log-scaled term-frequency vectors over a bounded text
// prefix; quality is a content-depth heuristic. Both are deterministic
// by design so a resumed run ranks identically.
// Implements: prd005-ranking;
//
//	docs/ARCHITECTURE § Ranking.
package ranker

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/meshintel/deepresearch/internal/searcher"
	"github.com/meshintel/deepresearch/pkg/types"
)

// Rank scores every successfully fetched document against the
// sub-question, sorts by composite score, and marks sources accepted
// until their domain reaches the per-sub-question cap. Failed fetches
// are excluded; rejected sources stay in the list with Accepted=false
// for audit.
func Rank(docs []types.FetchedDocument, subQuestion string, cfg types.RankConfig) []types.RankedSource {
	queryVec := termVector(subQuestion, 0)

	var sources []types.RankedSource
	for _, doc := range docs {
		if doc.Failed() {
			continue
		}
		sources = append(sources, types.RankedSource{
			SourceURL:      doc.SourceURL,
			Title:          doc.Title,
			RelevanceScore: cosine(queryVec, termVector(doc.ExtractedText, cfg.PrefixWords)),
			QualityScore:   qualityScore(doc.ExtractedText),
			Domain:         searcher.Domain(doc.SourceURL),
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		ci, cj := sources[i].Composite(), sources[j].Composite()
		if ci != cj {
			return ci > cj
		}
		return sources[i].SourceURL < sources[j].SourceURL
	})

	perDomain := make(map[string]int)
	for i := range sources {
		if perDomain[sources[i].Domain] < cfg.DomainCap {
			sources[i].Accepted = true
			perDomain[sources[i].Domain]++
		}
	}
	return sources
}

// AcceptedCount returns how many sources passed the diversity filter.
func AcceptedCount(sources []types.RankedSource) int {
	n := 0
	for _, s := range sources {
		if s.Accepted {
			n++
		}
	}
	return n
}

// stopwords are excluded from term vectors; they dominate raw frequency
// counts without carrying topical signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// termVector builds a log-scaled term-frequency vector over at most
// maxWords tokens (0 means no bound).
func termVector(text string, maxWords int) map[string]float64 {
	counts := make(map[string]int)
	n := 0
	for _, term := range tokenize(text) {
		if maxWords > 0 && n >= maxWords {
			break
		}
		n++
		if stopwords[term] || len(term) < 2 {
			continue
		}
		counts[term]++
	}

	vec := make(map[string]float64, len(counts))
	for term, c := range counts {
		vec[term] = 1 + math.Log(float64(c))
	}
	return vec
}

// tokenize lowercases and splits on non-alphanumeric runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// cosine computes the cosine similarity of two sparse vectors.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, wa := range a {
		normA += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// qualityScore estimates content depth from document shape: enough text
// to be substantive, paragraph structure, and vocabulary breadth (thin
// or templated pages repeat a small vocabulary).
func qualityScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	lengthScore := math.Min(1, float64(len(words))/800)

	blocks := 0
	for _, line := range strings.Split(text, "\n") {
		if len(strings.Fields(line)) >= 5 {
			blocks++
		}
	}
	structureScore := math.Min(1, float64(blocks)/10)

	unique := make(map[string]bool, len(words))
	sample := words
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	for _, w := range sample {
		unique[strings.ToLower(w)] = true
	}
	vocabScore := math.Min(1, 2*float64(len(unique))/float64(len(sample)))

	return 0.5*lengthScore + 0.2*structureScore + 0.3*vocabScore
}
