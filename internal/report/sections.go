// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meshintel/deepresearch/pkg/types"
)

// findingEntry pairs a sub-question with its finding, in plan order.
type findingEntry struct {
	question types.SubQuestion
	finding  types.SynthesizedFinding
}

func executiveSummary(entries []findingEntry) string {
	var b strings.Builder
	b.WriteString("This report synthesizes findings from multiple independent web sources.\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- %s", firstSentence(e.finding.AnswerText))
	}
	return b.String()
}

func introduction(run *types.ResearchRun, answered int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", run.ClarifiedQuery)
	if run.ClarifiedQuery != run.OriginalQuery {
		fmt.Fprintf(&b, "As originally posed: %s\n\n", run.OriginalQuery)
	}
	fmt.Fprintf(&b, "The question was decomposed into %d sub-questions, of which %d were answered.",
		len(run.Plan.SubQuestions), answered)
	return b.String()
}

// keyTakeaways lists the three highest-confidence findings.
func keyTakeaways(entries []findingEntry) string {
	ranked := make([]findingEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].finding.Confidence > ranked[j].finding.Confidence
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	var b strings.Builder
	for i, e := range ranked {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s (confidence %.2f)", firstSentence(e.finding.AnswerText), e.finding.Confidence)
	}
	return b.String()
}

// analysis discusses agreement and surfaces contradictions with their
// sources cited.
func analysis(entries []findingEntry, cites *citationSet) string {
	var contradicted []findingEntry
	for _, e := range entries {
		if len(e.finding.ContradictingSourceURLs) > 0 {
			contradicted = append(contradicted, e)
		}
	}

	var b strings.Builder
	if len(contradicted) == 0 {
		b.WriteString("The consulted sources are broadly consistent; no direct contradictions were detected between them.")
		return b.String()
	}

	fmt.Fprintf(&b, "Sources disagree on %d sub-question(s):\n", len(contradicted))
	for _, e := range contradicted {
		fmt.Fprintf(&b, "\n- %s — conflicting accounts %s; confidence capped accordingly.",
			e.question.Text, cites.markers(e.finding.ContradictingSourceURLs))
	}
	return b.String()
}

// limitations identifies the sub-questions affected by degraded inputs:
// unanswered questions, thin coverage, and recoverable errors recorded
// during the run.
func limitations(run *types.ResearchRun) string {
	var parts []string

	if len(run.Unanswered) > 0 {
		var texts []string
		for _, id := range run.Unanswered {
			if q := run.Plan.Question(id); q != nil {
				texts = append(texts, q.Text)
			}
		}
		parts = append(parts, fmt.Sprintf("The following sub-questions could not be answered because no usable sources were found:\n- %s",
			strings.Join(texts, "\n- ")))
	}

	var thin []string
	for _, sq := range run.Plan.SubQuestions {
		if f, ok := run.Findings[sq.ID]; ok && f.LowCoverage {
			thin = append(thin, sq.Text)
		}
	}
	if len(thin) > 0 {
		parts = append(parts, fmt.Sprintf("Fewer than two independent sources were available for:\n- %s",
			strings.Join(thin, "\n- ")))
	}

	recoverable := 0
	for _, e := range run.Errors {
		if e.Recoverable {
			recoverable++
		}
	}
	if recoverable > 0 {
		parts = append(parts, fmt.Sprintf("%d recoverable error(s) occurred during retrieval; source coverage is reduced accordingly.", recoverable))
	}

	if len(parts) == 0 {
		return "No material limitations were identified during this run."
	}
	return strings.Join(parts, "\n\n")
}

func recommendations(entries []findingEntry) string {
	var b strings.Builder
	b.WriteString("- Verify load-bearing claims against primary documentation before acting on them.")
	for _, e := range entries {
		if len(e.finding.ContradictingSourceURLs) > 0 {
			fmt.Fprintf(&b, "\n- Resolve the conflicting accounts for %q with a primary source.", e.question.Text)
		} else if e.finding.LowCoverage {
			fmt.Fprintf(&b, "\n- Seek additional sources for %q; current coverage is thin.", e.question.Text)
		}
	}
	return b.String()
}

func conclusion(run *types.ResearchRun, overall float64) string {
	return fmt.Sprintf("Across %d answered sub-questions the overall confidence in this report is %.2f. Confidence weights each finding by its number of supporting sources.",
		len(run.Findings), overall)
}

// overallConfidence is the mean of finding confidences weighted by
// supporting source count. Findings without supporters weigh one.
func overallConfidence(entries []findingEntry) float64 {
	var sum, weight float64
	for _, e := range entries {
		w := float64(len(e.finding.SupportingSourceURLs))
		if w == 0 {
			w = 1
		}
		sum += w * e.finding.Confidence
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
