// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deepresearch pipeline.
// Implements: prd001-orchestration (ResearchRun, Phase);
//
//	prd002-planning (ResearchPlan, SubQuestion);
//	prd003-search (SearchResult);
//	prd004-fetch (FetchedDocument);
//	prd005-ranking (RankedSource);
//	prd006-synthesis (SynthesizedFinding);
//	prd007-report (ResearchReport, Citation).
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import "time"

// Phase identifies the pipeline stage a run is currently in.
// Transitions are strictly forward except the clarification detour,
// which returns to PhaseIntake once an answer is supplied.
type Phase string

const (
	PhaseIntake                Phase = "intake"
	PhasePlanning              Phase = "planning"
	PhaseSearching             Phase = "searching"
	PhaseFetching              Phase = "fetching"
	PhaseRanking               Phase = "ranking"
	PhaseSynthesizing          Phase = "synthesizing"
	PhaseWriting               Phase = "writing"
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	PhaseDone                  Phase = "done"
	PhaseFailed                Phase = "failed"
)

// Terminal reports whether the phase is a terminal state.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// RunError records one error raised during a run. Errors are appended in
// order and never dropped, recoverable or not.
type RunError struct {
	// Phase is the pipeline stage the error occurred in.
	Phase Phase `json:"phase" yaml:"phase"`

	// Message is the error text.
	Message string `json:"message" yaml:"message"`

	// Recoverable indicates the run continued with degraded inputs.
	Recoverable bool `json:"recoverable" yaml:"recoverable"`

	// At is when the error was recorded.
	At time.Time `json:"at" yaml:"at"`
}

// RunConfig holds the per-run knobs supplied at start.
type RunConfig struct {
	// MaxSources is the maximum number of sources fetched per run.
	MaxSources int `json:"max_sources" yaml:"max_sources"`

	// MaxDepth bounds the decomposition depth of the research plan.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// ResearchRun is one execution of the pipeline. It owns every entity
// produced during the run and serializes as a whole to the checkpoint
// store, keyed by RunID. The run is mutated only by the orchestrator
// goroutine driving it; phase workers report results back through
// aggregation channels and never touch the run directly.
type ResearchRun struct {
	// RunID is the opaque identifier, also the checkpoint key.
	RunID string `json:"run_id" yaml:"run_id"`

	// OriginalQuery is the query as submitted.
	OriginalQuery string `json:"original_query" yaml:"original_query"`

	// ClarifiedQuery is the query after the clarification detour. Equals
	// OriginalQuery when no clarification was needed.
	ClarifiedQuery string `json:"clarified_query" yaml:"clarified_query"`

	// ClarifyingQuestion is the question posed to the caller while the run
	// is awaiting clarification.
	ClarifyingQuestion string `json:"clarifying_question,omitempty" yaml:"clarifying_question,omitempty"`

	// IntentTag and DomainTag are classification labels set once during
	// intake and immutable thereafter.
	IntentTag string `json:"intent_tag" yaml:"intent_tag"`
	DomainTag string `json:"domain_tag" yaml:"domain_tag"`

	// CurrentPhase is the stage the run is in.
	CurrentPhase Phase `json:"current_phase" yaml:"current_phase"`

	// PhaseFraction is the completed fraction (0.0 to 1.0) of the current
	// phase's sub-tasks: waves searched, sub-questions fetched or
	// synthesized. Reset to zero on every phase transition.
	PhaseFraction float64 `json:"phase_fraction,omitempty" yaml:"phase_fraction,omitempty"`

	// Config holds the per-run limits supplied at start.
	Config RunConfig `json:"config" yaml:"config"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// PhaseDurations maps each completed phase to its wall-clock duration.
	// Append-only.
	PhaseDurations map[Phase]time.Duration `json:"phase_durations" yaml:"phase_durations"`

	// Errors is the ordered list of errors raised during the run.
	Errors []RunError `json:"errors" yaml:"errors"`

	// Plan is attached by the planning phase.
	Plan *ResearchPlan `json:"plan,omitempty" yaml:"plan,omitempty"`

	// SearchResults maps sub-question ID to its deduplicated results.
	SearchResults map[string][]SearchResult `json:"search_results,omitempty" yaml:"search_results,omitempty"`

	// Unanswered lists sub-question IDs that produced no usable sources,
	// whether every provider failed, no provider returned a hit, or the
	// source budget ran out first; they are excluded from later phases.
	Unanswered []string `json:"unanswered,omitempty" yaml:"unanswered,omitempty"`

	// Documents maps sub-question ID to its fetched documents, including
	// failed fetches retained for audit.
	Documents map[string][]FetchedDocument `json:"documents,omitempty" yaml:"documents,omitempty"`

	// Ranked maps sub-question ID to its scored sources, accepted and
	// rejected alike.
	Ranked map[string][]RankedSource `json:"ranked,omitempty" yaml:"ranked,omitempty"`

	// Findings maps sub-question ID to its synthesized finding.
	Findings map[string]SynthesizedFinding `json:"findings,omitempty" yaml:"findings,omitempty"`

	// Report is the final artifact, set when the run reaches PhaseDone.
	Report *ResearchReport `json:"report,omitempty" yaml:"report,omitempty"`
}

// RecordError appends an error to the run's audit trail.
func (r *ResearchRun) RecordError(phase Phase, msg string, recoverable bool) {
	r.Errors = append(r.Errors, RunError{
		Phase:       phase,
		Message:     msg,
		Recoverable: recoverable,
		At:          time.Now().UTC(),
	})
}

// RecordPhaseDuration stores the wall-clock duration of a completed phase.
func (r *ResearchRun) RecordPhaseDuration(phase Phase, d time.Duration) {
	if r.PhaseDurations == nil {
		r.PhaseDurations = make(map[Phase]time.Duration)
	}
	r.PhaseDurations[phase] = d
}

// IsUnanswered reports whether the sub-question was marked unanswered
// during the search phase.
func (r *ResearchRun) IsUnanswered(subQuestionID string) bool {
	for _, id := range r.Unanswered {
		if id == subQuestionID {
			return true
		}
	}
	return false
}
