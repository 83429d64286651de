// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SubQuestion is one node in the research plan's dependency graph.
type SubQuestion struct {
	// ID is a short stable identifier unique within the plan (e.g. "q1").
	ID string `json:"id" yaml:"id"`

	// Text is the sub-question in natural language.
	Text string `json:"text" yaml:"text"`

	// DependsOn lists the IDs of sub-questions whose findings this one
	// builds on. Every entry must name an existing sub-question.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ResearchPlan is the planner's decomposition of a research query into a
// directed acyclic graph of sub-questions, plus a feasible execution order.
// Per prd002-planning.
type ResearchPlan struct {
	// SubQuestions holds the nodes in original generation order.
	SubQuestions []SubQuestion `json:"sub_questions" yaml:"sub_questions"`

	// ExecutionOrder groups sub-question IDs into waves. Every ID in a
	// wave has all its dependencies satisfied by earlier waves, so the
	// members of a wave are eligible for concurrent execution.
	ExecutionOrder [][]string `json:"execution_order" yaml:"execution_order"`
}

// Question returns the sub-question with the given ID, or nil.
func (p *ResearchPlan) Question(id string) *SubQuestion {
	for i := range p.SubQuestions {
		if p.SubQuestions[i].ID == id {
			return &p.SubQuestions[i]
		}
	}
	return nil
}
