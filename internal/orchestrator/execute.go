// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/planner"
	"github.com/meshintel/deepresearch/internal/ranker"
	"github.com/meshintel/deepresearch/internal/report"
	"github.com/meshintel/deepresearch/internal/searcher"
	"github.com/meshintel/deepresearch/internal/synthesizer"
	"github.com/meshintel/deepresearch/pkg/types"
)

func nowUTC() time.Time { return time.Now().UTC() }

// execute drives the run from its current phase to a terminal one,
// checkpointing after every transition. The whole pipeline runs under
// the wall-clock budget; a run awaiting clarification parks by
// returning, and Clarify relaunches it with a fresh budget.
func (o *Orchestrator) execute(ctx context.Context, run *types.ResearchRun) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Orchestrator.RunBudget)
	defer cancel()

	for !run.CurrentPhase.Terminal() {
		phase := run.CurrentPhase
		started := nowUTC()

		var err error
		switch phase {
		case types.PhaseIntake:
			err = o.runIntake(ctx, run)
		case types.PhasePlanning:
			err = o.runPlanning(ctx, run)
		case types.PhaseSearching:
			err = o.runSearching(ctx, run)
		case types.PhaseFetching:
			err = o.runFetching(ctx, run)
		case types.PhaseRanking:
			err = o.runRanking(run)
		case types.PhaseSynthesizing:
			err = o.runSynthesizing(ctx, run)
		case types.PhaseWriting:
			err = o.runWriting(run)
		case types.PhaseAwaitingClarification:
			o.checkpoint(run)
			return
		default:
			err = fmt.Errorf("unknown phase %q", phase)
		}

		run.RecordPhaseDuration(phase, nowUTC().Sub(started))

		if err != nil {
			o.fail(ctx, run, phase, err)
			return
		}

		// The next phase starts with none of its sub-tasks done.
		run.PhaseFraction = 0

		o.logger.Info("phase complete",
			zap.String("run_id", run.RunID),
			zap.String("phase", string(phase)),
			zap.String("next", string(run.CurrentPhase)),
			zap.Duration("took", run.PhaseDurations[phase]))
		o.checkpoint(run)

		if run.CurrentPhase == types.PhaseAwaitingClarification {
			return
		}
	}
}

// fail marks the run failed, translating budget exhaustion and
// cancellation into their own messages.
func (o *Orchestrator) fail(ctx context.Context, run *types.ResearchRun, phase types.Phase, err error) {
	msg := err.Error()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = fmt.Sprintf("run budget %s exceeded during %s", o.cfg.Orchestrator.RunBudget, phase)
	case errors.Is(ctx.Err(), context.Canceled):
		msg = "run canceled"
	}

	run.RecordError(phase, msg, false)
	run.CurrentPhase = types.PhaseFailed
	o.logger.Error("run failed",
		zap.String("run_id", run.RunID),
		zap.String("phase", string(phase)),
		zap.String("reason", msg))
	o.checkpoint(run)
}

// checkpoint saves the run's state. Checkpoint writes are not allowed to
// kill a run that is otherwise progressing, so failures are logged and
// recorded rather than propagated.
func (o *Orchestrator) checkpoint(run *types.ResearchRun) {
	// The run's own context may already be canceled; the checkpoint write
	// must still go through.
	if err := o.store.Save(context.Background(), run); err != nil {
		run.RecordError(run.CurrentPhase, fmt.Sprintf("checkpoint write failed: %v", err), true)
		o.logger.Error("checkpoint write failed",
			zap.String("run_id", run.RunID),
			zap.Error(err))
	}
}

// runIntake classifies the query and decides whether to detour for
// clarification. The detour is taken at most once per run: a query that
// already carries a clarification answer proceeds regardless.
func (o *Orchestrator) runIntake(ctx context.Context, run *types.ResearchRun) error {
	cls, err := o.engine.Classify(ctx, run.ClarifiedQuery)
	if err != nil {
		return fmt.Errorf("classifying query: %w", err)
	}

	alreadyClarified := run.ClarifiedQuery != run.OriginalQuery
	if cls.NeedsClarification && !alreadyClarified {
		run.ClarifyingQuestion = cls.ClarifyingQuestion
		run.CurrentPhase = types.PhaseAwaitingClarification
		return nil
	}

	run.IntentTag = cls.IntentTag
	run.DomainTag = cls.DomainTag
	run.CurrentPhase = types.PhasePlanning
	return nil
}

// runPlanning decomposes the clarified query and bounds the plan to the
// run's depth limit.
func (o *Orchestrator) runPlanning(ctx context.Context, run *types.ResearchRun) error {
	plan, err := planner.Plan(ctx, o.engine, run.ClarifiedQuery, run.DomainTag)
	if err != nil {
		return err
	}

	if len(plan.ExecutionOrder) > run.Config.MaxDepth {
		plan = truncateDepth(plan, run.Config.MaxDepth)
		run.RecordError(types.PhasePlanning,
			fmt.Sprintf("plan truncated to depth %d", run.Config.MaxDepth), true)
	}

	run.Plan = plan
	run.CurrentPhase = types.PhaseSearching
	return nil
}

// truncateDepth drops waves beyond maxDepth along with their
// sub-questions.
func truncateDepth(plan *types.ResearchPlan, maxDepth int) *types.ResearchPlan {
	kept := make(map[string]bool)
	order := plan.ExecutionOrder[:maxDepth]
	for _, wave := range order {
		for _, id := range wave {
			kept[id] = true
		}
	}

	out := &types.ResearchPlan{ExecutionOrder: order}
	for _, q := range plan.SubQuestions {
		if kept[q.ID] {
			out.SubQuestions = append(out.SubQuestions, q)
		}
	}
	return out
}

// runSearching fans each wave out to every provider. A sub-question is
// unanswered only when every provider failed for it; only a run with no
// answerable sub-questions at all fails.
func (o *Orchestrator) runSearching(ctx context.Context, run *types.ResearchRun) error {
	run.SearchResults = make(map[string][]types.SearchResult)
	if len(o.backends) == 0 {
		return errors.New("no search providers configured")
	}

	for i, waveIDs := range run.Plan.ExecutionOrder {
		var wave []types.SubQuestion
		for _, id := range waveIDs {
			if q := run.Plan.Question(id); q != nil {
				wave = append(wave, *q)
			}
		}

		out := searcher.SearchWave(ctx, wave, o.backends, o.cfg.Search, o.logger)
		for id, results := range out.Results {
			run.SearchResults[id] = results
		}
		run.Unanswered = append(run.Unanswered, out.Unanswered...)
		for _, msg := range out.ProviderErrors {
			run.RecordError(types.PhaseSearching, msg, true)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		run.PhaseFraction = float64(i+1) / float64(len(run.Plan.ExecutionOrder))
		o.checkpoint(run)
	}

	if len(run.SearchResults) == 0 {
		return errors.New("every provider failed for every sub-question")
	}
	run.CurrentPhase = types.PhaseFetching
	return nil
}

// runFetching downloads each sub-question's sources under the run's
// total source budget, spent in plan order. A sub-question with nothing
// to fetch, whether its providers returned no hits or the budget ran
// out first, degrades to unanswered so the report can surface it.
func (o *Orchestrator) runFetching(ctx context.Context, run *types.ResearchRun) error {
	run.Documents = make(map[string][]types.FetchedDocument)
	remaining := run.Config.MaxSources

	for i, sq := range run.Plan.SubQuestions {
		if run.IsUnanswered(sq.ID) {
			continue
		}
		results := run.SearchResults[sq.ID]
		if len(results) == 0 {
			run.Unanswered = append(run.Unanswered, sq.ID)
			run.RecordError(types.PhaseFetching,
				fmt.Sprintf("sub-question %s: search produced no results", sq.ID), true)
			continue
		}
		if len(results) > remaining {
			results = results[:remaining]
		}
		if len(results) == 0 {
			run.Unanswered = append(run.Unanswered, sq.ID)
			run.RecordError(types.PhaseFetching,
				fmt.Sprintf("sub-question %s: source budget exhausted before fetching", sq.ID), true)
			continue
		}

		docs := o.fetcher.FetchAll(ctx, results)
		run.Documents[sq.ID] = docs
		remaining -= len(results)

		failed := 0
		for _, d := range docs {
			if d.Failed() {
				failed++
			}
		}
		if failed > 0 {
			run.RecordError(types.PhaseFetching,
				fmt.Sprintf("sub-question %s: %d of %d fetches failed", sq.ID, failed, len(docs)), true)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		run.PhaseFraction = float64(i+1) / float64(len(run.Plan.SubQuestions))
		o.checkpoint(run)
	}

	run.CurrentPhase = types.PhaseRanking
	return nil
}

// runRanking scores and diversity-filters each sub-question's documents.
// A sub-question whose every fetch failed degrades to unanswered.
func (o *Orchestrator) runRanking(run *types.ResearchRun) error {
	run.Ranked = make(map[string][]types.RankedSource)

	for i, sq := range run.Plan.SubQuestions {
		run.PhaseFraction = float64(i+1) / float64(len(run.Plan.SubQuestions))
		if run.IsUnanswered(sq.ID) {
			continue
		}
		docs := run.Documents[sq.ID]
		if len(docs) == 0 {
			run.Unanswered = append(run.Unanswered, sq.ID)
			run.RecordError(types.PhaseRanking,
				fmt.Sprintf("sub-question %s: no documents to rank", sq.ID), true)
			continue
		}

		ranked := ranker.Rank(docs, sq.Text, o.cfg.Rank)
		if ranker.AcceptedCount(ranked) == 0 {
			run.Unanswered = append(run.Unanswered, sq.ID)
			run.RecordError(types.PhaseRanking,
				fmt.Sprintf("sub-question %s: no usable sources after ranking", sq.ID), true)
			continue
		}
		run.Ranked[sq.ID] = ranked
	}

	run.CurrentPhase = types.PhaseSynthesizing
	return nil
}

// runSynthesizing merges each sub-question's accepted sources into a
// finding. A synthesis failure degrades that sub-question; a run with no
// findings at all fails.
func (o *Orchestrator) runSynthesizing(ctx context.Context, run *types.ResearchRun) error {
	run.Findings = make(map[string]types.SynthesizedFinding)

	for i, sq := range run.Plan.SubQuestions {
		ranked := run.Ranked[sq.ID]
		if run.IsUnanswered(sq.ID) || len(ranked) == 0 {
			continue
		}

		finding, err := synthesizer.Synthesize(ctx, o.engine, sq, ranked, run.Documents[sq.ID])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			run.Unanswered = append(run.Unanswered, sq.ID)
			run.RecordError(types.PhaseSynthesizing, err.Error(), true)
			continue
		}
		run.Findings[sq.ID] = finding

		run.PhaseFraction = float64(i+1) / float64(len(run.Plan.SubQuestions))
		o.checkpoint(run)
	}

	if len(run.Findings) == 0 {
		return errors.New("no sub-question could be synthesized")
	}
	run.CurrentPhase = types.PhaseWriting
	return nil
}

// runWriting assembles the final report.
func (o *Orchestrator) runWriting(run *types.ResearchRun) error {
	rep, err := report.Write(run)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	run.Report = rep
	run.CurrentPhase = types.PhaseDone
	return nil
}
