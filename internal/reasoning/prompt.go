// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reasoning

import (
	"bytes"
	"text/template"
)

// classifyPromptTmpl tags a research query with intent and domain labels
// and decides whether the query is answerable without clarification.
var classifyPromptTmpl = template.Must(template.New("classify").Parse(`You are the intake stage of a research pipeline. Classify the following research query.

Determine:
- intent_tag: a short lowercase label for what the user wants (e.g. "comparison", "survey", "how-to", "fact-check")
- domain_tag: a short lowercase label for the subject area (e.g. "databases", "medicine", "finance")
- needs_clarification: true only if the query is too ambiguous to decompose into concrete sub-questions
- clarifying_question: when needs_clarification is true, one question that would resolve the ambiguity; otherwise an empty string

Respond with a single JSON object containing exactly those four fields. Do not include any text outside the JSON object.

Example response:
{"intent_tag": "comparison", "domain_tag": "databases", "needs_clarification": false, "clarifying_question": ""}

Query:
{{.Query}}
`))

// decomposePromptTmpl breaks a query into sub-questions with declared
// prerequisite relationships.
var decomposePromptTmpl = template.Must(template.New("decompose").Parse(`You are the planning stage of a research pipeline. Decompose the following research query into between 5 and {{.Max}} concrete sub-questions.

Rules:
- Each sub-question must be independently searchable on the web.
- Give each sub-question a short id: "q1", "q2", ...
- depends_on lists ids of sub-questions whose answers this one builds on. Most sub-questions have no dependencies. Never create a dependency cycle.
- Order sub-questions from foundational to derivative.

Respond with a JSON object containing a "sub_questions" array. Each element has "id", "text", and "depends_on" (possibly empty array). Do not include any text outside the JSON object.

Example response:
{"sub_questions": [{"id": "q1", "text": "What is write-ahead logging?", "depends_on": []}, {"id": "q2", "text": "How do PostgreSQL and MySQL implement write-ahead logging?", "depends_on": ["q1"]}]}

Domain: {{.Domain}}
Query:
{{.Query}}
`))

// synthesizePromptTmpl merges ranked source excerpts into one answer.
var synthesizePromptTmpl = template.Must(template.New("synthesize").Parse(`You are the synthesis stage of a research pipeline. Merge the following source excerpts into one coherent answer to the sub-question.

Rules:
- Base every claim on the excerpts; do not add outside knowledge.
- supporting_source_urls lists the urls of sources that back the answer, most load-bearing first.
- If two sources make mutually exclusive factual claims about the sub-question, do not pick a side: note the disagreement in the answer and list both urls in contradicting_source_urls.
- agreement is a float between 0.0 and 1.0 for how well the supporting sources agree with each other.

Respond with a single JSON object with fields "answer_text", "supporting_source_urls", "contradicting_source_urls", and "agreement". Do not include any text outside the JSON object.

Sub-question:
{{.Question}}

Sources:
{{range .Excerpts}}---
url: {{.SourceURL}}
title: {{.Title}}
relevance: {{printf "%.2f" .Relevance}}
{{.Excerpt}}
{{end}}`))

// renderClassifyPrompt executes the classification template.
func renderClassifyPrompt(query string) (string, error) {
	var buf bytes.Buffer
	err := classifyPromptTmpl.Execute(&buf, struct{ Query string }{Query: query})
	return buf.String(), err
}

// renderDecomposePrompt executes the decomposition template.
func renderDecomposePrompt(query, domain string, maxQuestions int) (string, error) {
	if maxQuestions < 5 {
		maxQuestions = 5
	}
	var buf bytes.Buffer
	err := decomposePromptTmpl.Execute(&buf, struct {
		Query  string
		Domain string
		Max    int
	}{Query: query, Domain: domain, Max: maxQuestions})
	return buf.String(), err
}

// renderSynthesizePrompt executes the synthesis template.
func renderSynthesizePrompt(question string, excerpts []SourceExcerpt) (string, error) {
	var buf bytes.Buffer
	err := synthesizePromptTmpl.Execute(&buf, struct {
		Question string
		Excerpts []SourceExcerpt
	}{Question: question, Excerpts: excerpts})
	return buf.String(), err
}
