// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner decomposes a research query into a dependency-ordered
// plan of sub-questions. Decomposition is delegated to the reasoning
// engine; the planner validates the returned graph and computes a wave
// execution order via Kahn's algorithm.
// Implements: prd002-planning;
//
//	docs/ARCHITECTURE § Planning.
package planner

import (
	"context"
	"fmt"

	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/pkg/types"
)

// DecompositionError indicates the reasoning engine produced a plan the
// pipeline cannot execute: empty, referencing unknown ids, or cyclic.
// Fatal to the run.
type DecompositionError struct {
	Reason string
}

func (e *DecompositionError) Error() string {
	return "decomposition failed: " + e.Reason
}

// maxSubQuestions bounds decomposition regardless of configured depth.
const maxSubQuestions = 10

// Plan decomposes the clarified query into a dependency DAG of
// sub-questions and computes the wave execution order.
func Plan(ctx context.Context, engine reasoning.Engine, clarifiedQuery, domainTag string) (*types.ResearchPlan, error) {
	decomposed, err := engine.Decompose(ctx, clarifiedQuery, domainTag, maxSubQuestions)
	if err != nil {
		return nil, fmt.Errorf("decomposing query: %w", err)
	}
	if len(decomposed) == 0 {
		return nil, &DecompositionError{Reason: "empty plan"}
	}

	plan := &types.ResearchPlan{}
	for _, q := range decomposed {
		plan.SubQuestions = append(plan.SubQuestions, types.SubQuestion{
			ID:        q.ID,
			Text:      q.Text,
			DependsOn: q.DependsOn,
		})
	}

	if err := validate(plan.SubQuestions); err != nil {
		return nil, err
	}

	order, err := executionOrder(plan.SubQuestions)
	if err != nil {
		return nil, err
	}
	plan.ExecutionOrder = order
	return plan, nil
}

// validate checks ids are unique, non-empty, and that every dependency
// names an existing sub-question.
func validate(questions []types.SubQuestion) error {
	ids := make(map[string]bool, len(questions))
	for _, q := range questions {
		if q.ID == "" || q.Text == "" {
			return &DecompositionError{Reason: fmt.Sprintf("sub-question with empty id or text: %+v", q)}
		}
		if ids[q.ID] {
			return &DecompositionError{Reason: fmt.Sprintf("duplicate sub-question id %q", q.ID)}
		}
		ids[q.ID] = true
	}
	for _, q := range questions {
		for _, dep := range q.DependsOn {
			if !ids[dep] {
				return &DecompositionError{Reason: fmt.Sprintf("sub-question %q depends on unknown id %q", q.ID, dep)}
			}
			if dep == q.ID {
				return &DecompositionError{Reason: fmt.Sprintf("sub-question %q depends on itself", q.ID)}
			}
		}
	}
	return nil
}

// executionOrder runs Kahn's algorithm grouped into waves: all nodes
// with in-degree zero at a given iteration form one wave; remove them
// and repeat. Ties within a wave keep original generation order. If
// nodes remain unprocessed the graph is cyclic, which is fatal.
func executionOrder(questions []types.SubQuestion) ([][]string, error) {
	indegree := make(map[string]int, len(questions))
	dependents := make(map[string][]string, len(questions))
	for _, q := range questions {
		indegree[q.ID] = len(q.DependsOn)
		for _, dep := range q.DependsOn {
			dependents[dep] = append(dependents[dep], q.ID)
		}
	}

	processed := 0
	var waves [][]string
	for processed < len(questions) {
		// Collect the current in-degree-zero frontier in generation order.
		var wave []string
		for _, q := range questions {
			if deg, ok := indegree[q.ID]; ok && deg == 0 {
				wave = append(wave, q.ID)
			}
		}
		if len(wave) == 0 {
			return nil, &DecompositionError{Reason: fmt.Sprintf(
				"cyclic dependencies: %d of %d sub-questions unreachable", len(questions)-processed, len(questions))}
		}
		for _, id := range wave {
			delete(indegree, id)
			for _, dep := range dependents[id] {
				if _, ok := indegree[dep]; ok {
					indegree[dep]--
				}
			}
		}
		processed += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}
