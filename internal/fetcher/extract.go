// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetcher

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelectors name elements that carry navigation or chrome
// rather than article text.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside", "form",
}

// ExtractReadableText parses HTML and returns the page's readable text:
// boilerplate elements are dropped, block elements separated by
// newlines, and whitespace collapsed.
func ExtractReadableText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		return collapseWhitespace(doc.Text()), nil
	}

	var parts []string
	root.Find("h1, h2, h3, h4, p, li, td, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is already covered by a nested match.
		if s.Find("p, li").Length() > 0 {
			return
		}
		text := collapseWhitespace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	if len(parts) == 0 {
		return collapseWhitespace(root.Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

// collapseWhitespace trims and squeezes runs of whitespace to single
// spaces, preserving nothing else.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
