// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SynthesizedFinding is the per-sub-question output of the synthesizer.
// Per prd006-synthesis.
type SynthesizedFinding struct {
	// SubQuestionID identifies the sub-question this finding answers.
	SubQuestionID string `json:"sub_question_id" yaml:"sub_question_id"`

	// AnswerText is the synthesized answer.
	AnswerText string `json:"answer_text" yaml:"answer_text"`

	// SupportingSourceURLs lists sources backing the answer, in citation order.
	SupportingSourceURLs []string `json:"supporting_source_urls" yaml:"supporting_source_urls"`

	// ContradictingSourceURLs lists sources making mutually exclusive
	// claims; contradictions are recorded, never silently resolved.
	ContradictingSourceURLs []string `json:"contradicting_source_urls,omitempty" yaml:"contradicting_source_urls,omitempty"`

	// Confidence is derived from corroboration, agreement, and supporting
	// source relevance, 0.0-1.0. Unresolved contradictions cap it at 0.5.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// LowCoverage flags findings built on fewer than two accepted sources.
	LowCoverage bool `json:"low_coverage,omitempty" yaml:"low_coverage,omitempty"`
}

// SectionName identifies one of the fixed report sections.
type SectionName string

const (
	SectionExecutiveSummary SectionName = "Executive Summary"
	SectionIntroduction     SectionName = "Introduction"
	SectionFindings         SectionName = "Findings"
	SectionKeyTakeaways     SectionName = "Key Takeaways"
	SectionAnalysis         SectionName = "Analysis"
	SectionLimitations      SectionName = "Limitations"
	SectionRecommendations  SectionName = "Recommendations"
	SectionConclusion       SectionName = "Conclusion"
)

// SectionOrder is the fixed ordering of report sections.
var SectionOrder = []SectionName{
	SectionExecutiveSummary,
	SectionIntroduction,
	SectionFindings,
	SectionKeyTakeaways,
	SectionAnalysis,
	SectionLimitations,
	SectionRecommendations,
	SectionConclusion,
}

// ReportSection is one rendered section of the report. Body is Markdown
// with inline citation markers of the form [n].
type ReportSection struct {
	Name SectionName `json:"name" yaml:"name"`
	Body string      `json:"body" yaml:"body"`
}

// Citation is one numbered bibliography entry. Numbers are assigned in
// first-use order across the whole document and every inline marker
// resolves to exactly one entry. Per prd007-report.
type Citation struct {
	Number    int    `json:"number" yaml:"number"`
	SourceURL string `json:"source_url" yaml:"source_url"`
	Title     string `json:"title" yaml:"title"`
}

// ResearchReport is the final artifact of a run.
type ResearchReport struct {
	// Title is derived from the clarified query.
	Title string `json:"title" yaml:"title"`

	// Sections in the fixed SectionOrder.
	Sections []ReportSection `json:"sections" yaml:"sections"`

	// Citations is the single bibliography, numbered 1..N.
	Citations []Citation `json:"citations" yaml:"citations"`

	// OverallConfidence is the mean of per-finding confidences weighted
	// by supporting source count, 0.0-1.0.
	OverallConfidence float64 `json:"overall_confidence" yaml:"overall_confidence"`
}

// Section returns the named section, or nil.
func (r *ResearchReport) Section(name SectionName) *ReportSection {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i]
		}
	}
	return nil
}
