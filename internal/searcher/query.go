// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package searcher

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/meshintel/deepresearch/pkg/types"
)

// stopwords are dropped when shaping keyword queries.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "between": true, "by": true, "can": true, "do": true,
	"does": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "their": true, "to": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true,
	"with": true,
}

// ShapeQuery adapts a sub-question to a provider's expected input shape:
// conversational and semantic backends receive the natural-language
// question; keyword backends receive the keyword-extracted form.
func ShapeQuery(text string, kind types.ProviderKind) string {
	if kind == types.KindKeyword {
		return ExtractKeywords(text)
	}
	return text
}

// ExtractKeywords lowercases the text, strips punctuation, and removes
// stopwords and repeated terms, preserving first-occurrence order.
func ExtractKeywords(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]bool)
	var terms []string
	for _, term := range strings.Fields(b.String()) {
		if stopwords[term] || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return strings.Join(terms, " ")
}

// trackingParams are query parameters stripped during URL normalization.
// Prefix match for utm_*; exact match otherwise.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
}

// NormalizeURL canonicalizes a URL for deduplication: lowercase scheme
// and host, tracking parameters and fragment stripped, remaining query
// parameters sorted, trailing slash removed. Returns "" for unparseable
// input.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	// url.Values.Encode sorts keys, giving a stable parameter order.
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// Domain returns the lowercased host of a URL, without port, for the
// ranker's diversity filter.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
