// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ProviderKind classifies a search backend by the shape of query it
// expects and the quality of results it tends to return. Lower values
// win dedup tie-breaks.
type ProviderKind int

const (
	// KindConversational backends take natural-language questions and
	// return cited answers.
	KindConversational ProviderKind = iota

	// KindSemantic backends run neural/embedding search over documents.
	KindSemantic

	// KindKeyword backends run classic keyword web search.
	KindKeyword
)

// String returns the provider kind label used in logs and provider tags.
func (k ProviderKind) String() string {
	switch k {
	case KindConversational:
		return "conversational"
	case KindSemantic:
		return "semantic"
	case KindKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// SearchResult is one hit from one provider for one sub-question.
// Results are deduplicated by normalized SourceURL across providers
// before the fetch phase. Per prd003-search.
type SearchResult struct {
	// SourceURL is the result URL as returned by the provider.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// Title is the result title.
	Title string `json:"title" yaml:"title"`

	// Snippet is the provider's excerpt or summary for the hit.
	Snippet string `json:"snippet" yaml:"snippet"`

	// ProviderTag identifies which backend found this result.
	ProviderTag string `json:"provider_tag" yaml:"provider_tag"`

	// ProviderKind is the backend's kind, used as dedup priority.
	ProviderKind ProviderKind `json:"provider_kind" yaml:"provider_kind"`

	// RetrievedAt is when the provider returned the hit.
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`
}

// FetchedDocument is the extracted content for a SearchResult. Immutable
// once created. A failed fetch produces a document with empty text and a
// populated ExtractionError; it is excluded from ranking but retained
// for audit. Per prd004-fetch.
type FetchedDocument struct {
	// SourceURL is the fetched URL.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// Title carries the title from the originating search result.
	Title string `json:"title" yaml:"title"`

	// ExtractedText is the readable text pulled from the page. Empty when
	// extraction failed.
	ExtractedText string `json:"extracted_text" yaml:"extracted_text"`

	// ExtractionError describes why extraction failed, if it did.
	ExtractionError string `json:"extraction_error,omitempty" yaml:"extraction_error,omitempty"`

	// ContentLength is the byte length of the extracted text.
	ContentLength int `json:"content_length" yaml:"content_length"`
}

// Failed reports whether the fetch produced no usable text.
func (d FetchedDocument) Failed() bool {
	return d.ExtractionError != "" || d.ExtractedText == ""
}

// RankedSource is a FetchedDocument scored against a sub-question.
// Per prd005-ranking, at most the configured domain cap of accepted
// sources may share a Domain within one sub-question.
type RankedSource struct {
	// SourceURL identifies the underlying document.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// Title carries the source title for citation rendering.
	Title string `json:"title" yaml:"title"`

	// RelevanceScore is semantic similarity to the sub-question, 0.0-1.0.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// QualityScore is a content depth/trustworthiness heuristic, 0.0-1.0.
	QualityScore float64 `json:"quality_score" yaml:"quality_score"`

	// Domain is the source host, used by the diversity filter.
	Domain string `json:"domain" yaml:"domain"`

	// Accepted is set by the diversity filter. Rejected sources stay in
	// the list for audit but do not participate in synthesis.
	Accepted bool `json:"accepted" yaml:"accepted"`
}

// Composite returns the ranking sort key: relevance weighted 0.7,
// quality 0.3.
func (s RankedSource) Composite() float64 {
	return 0.7*s.RelevanceScore + 0.3*s.QualityScore
}
