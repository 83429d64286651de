// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders synthesized findings into a structured document
// with inline citations and a single bibliography. Citation numbers are
// assigned in first-use order across the whole document, and every
// inline marker resolves to exactly one bibliography entry.
// Implements: prd007-report;
//
//	docs/ARCHITECTURE § Report.
package report

import (
	"fmt"
	"strings"

	"github.com/meshintel/deepresearch/pkg/types"
)

// Write assembles the run's findings into the fixed section ordering.
// The run must have a plan and at least one finding.
func Write(run *types.ResearchRun) (*types.ResearchReport, error) {
	if run.Plan == nil {
		return nil, fmt.Errorf("run %s has no plan", run.RunID)
	}
	if len(run.Findings) == 0 {
		return nil, fmt.Errorf("run %s has no findings", run.RunID)
	}

	cites := newCitationSet(titlesByURL(run))

	// Findings in plan generation order, skipping unanswered questions.
	var entries []findingEntry
	for _, sq := range run.Plan.SubQuestions {
		if f, ok := run.Findings[sq.ID]; ok {
			entries = append(entries, findingEntry{question: sq, finding: f})
		}
	}

	rep := &types.ResearchReport{Title: run.ClarifiedQuery}

	rep.Sections = append(rep.Sections,
		types.ReportSection{Name: types.SectionExecutiveSummary, Body: executiveSummary(entries)},
		types.ReportSection{Name: types.SectionIntroduction, Body: introduction(run, len(entries))},
	)

	// Findings is where citation numbering starts: it is the first
	// section carrying inline markers.
	var findings strings.Builder
	for i, e := range entries {
		if i > 0 {
			findings.WriteString("\n\n")
		}
		fmt.Fprintf(&findings, "### %s\n\n%s %s", e.question.Text, e.finding.AnswerText, cites.markers(e.finding.SupportingSourceURLs))
		if e.finding.LowCoverage {
			findings.WriteString("\n\n*Limited source coverage for this sub-question.*")
		}
		fmt.Fprintf(&findings, "\n\nConfidence: %.2f", e.finding.Confidence)
	}
	rep.Sections = append(rep.Sections, types.ReportSection{Name: types.SectionFindings, Body: findings.String()})

	rep.Sections = append(rep.Sections,
		types.ReportSection{Name: types.SectionKeyTakeaways, Body: keyTakeaways(entries)},
		types.ReportSection{Name: types.SectionAnalysis, Body: analysis(entries, cites)},
		types.ReportSection{Name: types.SectionLimitations, Body: limitations(run)},
		types.ReportSection{Name: types.SectionRecommendations, Body: recommendations(entries)},
	)

	rep.OverallConfidence = overallConfidence(entries)
	rep.Sections = append(rep.Sections, types.ReportSection{
		Name: types.SectionConclusion,
		Body: conclusion(run, rep.OverallConfidence),
	})

	rep.Citations = cites.bibliography()
	return rep, nil
}

// citationSet assigns bibliography numbers in first-use order.
type citationSet struct {
	byURL  map[string]int
	order  []string
	titles map[string]string
}

func newCitationSet(titles map[string]string) *citationSet {
	return &citationSet{byURL: make(map[string]int), titles: titles}
}

// cite returns the citation number for a URL, assigning the next number
// on first use.
func (c *citationSet) cite(url string) int {
	if n, ok := c.byURL[url]; ok {
		return n
	}
	n := len(c.order) + 1
	c.byURL[url] = n
	c.order = append(c.order, url)
	return n
}

// markers renders inline markers like "[1][3]" for a list of URLs.
func (c *citationSet) markers(urls []string) string {
	var b strings.Builder
	for _, u := range urls {
		fmt.Fprintf(&b, "[%d]", c.cite(u))
	}
	return b.String()
}

// bibliography returns the numbered citation list.
func (c *citationSet) bibliography() []types.Citation {
	out := make([]types.Citation, 0, len(c.order))
	for i, url := range c.order {
		title := c.titles[url]
		if title == "" {
			title = url
		}
		out = append(out, types.Citation{Number: i + 1, SourceURL: url, Title: title})
	}
	return out
}

// titlesByURL collects source titles from the ranked lists.
func titlesByURL(run *types.ResearchRun) map[string]string {
	titles := make(map[string]string)
	for _, sources := range run.Ranked {
		for _, s := range sources {
			if s.Title != "" {
				titles[s.SourceURL] = s.Title
			}
		}
	}
	return titles
}

func firstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return strings.TrimSpace(text[:i+1])
		}
	}
	return strings.TrimSpace(text)
}
