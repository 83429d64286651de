// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator drives research runs through the pipeline state
// machine: intake, planning, searching, fetching, ranking, synthesizing,
// writing. Phase transitions are strictly forward except the
// clarification detour, every transition is checkpointed, and a run
// checkpointed mid-pipeline resumes from its last completed phase
// without repeating work.
// Implements: prd001-orchestration;
//
//	docs/ARCHITECTURE § Orchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/checkpoint"
	"github.com/meshintel/deepresearch/internal/fetcher"
	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/internal/report"
	"github.com/meshintel/deepresearch/pkg/types"
)

// ErrRunNotFound is returned for operations on unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// ValidationError rejects a malformed start request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects an operation the run's current phase does
// not permit.
type InvalidStateError struct {
	RunID string
	Phase types.Phase
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("run %s: cannot %s in phase %s", e.RunID, e.Op, e.Phase)
}

// Limits on caller-supplied run configuration.
const (
	maxSourcesLimit = 500
	maxDepthLimit   = 10
)

// Orchestrator owns the run registry and drives each run on its own
// goroutine. Run state is mutated only by that goroutine; every other
// operation reads the last checkpoint.
type Orchestrator struct {
	store    checkpoint.Store
	engine   reasoning.Engine
	backends []provider.Backend
	fetcher  *fetcher.Fetcher
	cfg      types.PipelineConfig
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

// runHandle identifies one driving goroutine. Clarify relaunches a run
// under a fresh handle, so registry cleanup must compare handles rather
// than run IDs alone.
type runHandle struct {
	cancel context.CancelFunc
}

// New assembles an orchestrator from its collaborators. cfg should
// already have defaults applied.
func New(store checkpoint.Store, engine reasoning.Engine, backends []provider.Backend, f *fetcher.Fetcher, cfg types.PipelineConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		engine:   engine,
		backends: backends,
		fetcher:  f,
		cfg:      cfg,
		logger:   logger,
		active:   make(map[string]*runHandle),
	}
}

// Start validates the request, creates the run, checkpoints it, and
// launches execution asynchronously. It returns the accepted run
// without waiting for any phase to complete.
func (o *Orchestrator) Start(ctx context.Context, query string, cfg types.RunConfig) (*types.ResearchRun, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if cfg.MaxSources < 0 || cfg.MaxSources > maxSourcesLimit {
		return nil, &ValidationError{Field: "max_sources", Reason: fmt.Sprintf("must be between 1 and %d", maxSourcesLimit)}
	}
	if cfg.MaxDepth < 0 || cfg.MaxDepth > maxDepthLimit {
		return nil, &ValidationError{Field: "max_depth", Reason: fmt.Sprintf("must be between 1 and %d", maxDepthLimit)}
	}
	if cfg.MaxSources == 0 {
		cfg.MaxSources = o.cfg.Orchestrator.DefaultMaxSources
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = o.cfg.Orchestrator.DefaultMaxDepth
	}

	run := newRun(query, cfg)
	if err := o.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("checkpointing new run: %w", err)
	}

	o.logger.Info("run accepted",
		zap.String("run_id", run.RunID),
		zap.Int("max_sources", cfg.MaxSources),
		zap.Int("max_depth", cfg.MaxDepth))

	o.launch(run)
	return run, nil
}

// Clarify supplies the answer to a pending clarifying question and
// resumes the run through intake with the refined query.
func (o *Orchestrator) Clarify(ctx context.Context, runID, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return &ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	run, err := o.load(ctx, runID)
	if err != nil {
		return err
	}
	if run.CurrentPhase != types.PhaseAwaitingClarification {
		return &InvalidStateError{RunID: runID, Phase: run.CurrentPhase, Op: "clarify"}
	}

	run.ClarifiedQuery = run.OriginalQuery + " (" + answer + ")"
	run.ClarifyingQuestion = ""
	run.CurrentPhase = types.PhaseIntake
	if err := o.store.Save(ctx, run); err != nil {
		return fmt.Errorf("checkpointing clarified run: %w", err)
	}

	o.logger.Info("run clarified", zap.String("run_id", runID))
	o.launch(run)
	return nil
}

// Cancel stops an in-flight run. The run transitions to failed; a run
// already in a terminal phase cannot be canceled.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	run, err := o.load(ctx, runID)
	if err != nil {
		return err
	}
	if run.CurrentPhase.Terminal() {
		return &InvalidStateError{RunID: runID, Phase: run.CurrentPhase, Op: "cancel"}
	}

	o.mu.Lock()
	h, running := o.active[runID]
	o.mu.Unlock()

	if running {
		h.cancel()
		return nil
	}

	// Not executing (awaiting clarification, or checkpointed by a
	// previous process): fail it directly.
	run.RecordError(run.CurrentPhase, "run canceled", false)
	run.CurrentPhase = types.PhaseFailed
	if err := o.store.Save(ctx, run); err != nil {
		return fmt.Errorf("checkpointing canceled run: %w", err)
	}
	return nil
}

// Status describes a run's observable state.
type Status struct {
	RunID              string           `json:"run_id"`
	Phase              types.Phase      `json:"phase"`
	Progress           float64          `json:"progress"`
	ClarifyingQuestion string           `json:"clarifying_question,omitempty"`
	Unanswered         []string         `json:"unanswered,omitempty"`
	Errors             []types.RunError `json:"errors,omitempty"`
}

// Status returns the run's phase, progress estimate, and error trail as
// of its last checkpoint.
func (o *Orchestrator) Status(ctx context.Context, runID string) (Status, error) {
	run, err := o.load(ctx, runID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		RunID:              run.RunID,
		Phase:              run.CurrentPhase,
		Progress:           progress(run),
		ClarifyingQuestion: run.ClarifyingQuestion,
		Unanswered:         run.Unanswered,
		Errors:             run.Errors,
	}, nil
}

// Report renders a completed run's report in the requested format.
func (o *Orchestrator) Report(ctx context.Context, runID string, format report.Format) ([]byte, string, error) {
	run, err := o.load(ctx, runID)
	if err != nil {
		return nil, "", err
	}
	if run.CurrentPhase != types.PhaseDone || run.Report == nil {
		return nil, "", &InvalidStateError{RunID: runID, Phase: run.CurrentPhase, Op: "render report"}
	}
	return report.Render(run.Report, format)
}

// Citations returns a completed run's bibliography.
func (o *Orchestrator) Citations(ctx context.Context, runID string) ([]types.Citation, error) {
	run, err := o.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.CurrentPhase != types.PhaseDone || run.Report == nil {
		return nil, &InvalidStateError{RunID: runID, Phase: run.CurrentPhase, Op: "list citations"}
	}
	return run.Report.Citations, nil
}

// Delete removes a terminal run's checkpoint. In-flight runs must be
// canceled first.
func (o *Orchestrator) Delete(ctx context.Context, runID string) error {
	run, err := o.load(ctx, runID)
	if err != nil {
		return err
	}
	if !run.CurrentPhase.Terminal() {
		return &InvalidStateError{RunID: runID, Phase: run.CurrentPhase, Op: "delete"}
	}
	return o.store.Delete(ctx, runID)
}

// ResumeAll relaunches every non-terminal checkpointed run. Called once
// at startup; runs awaiting clarification stay parked until Clarify.
func (o *Orchestrator) ResumeAll(ctx context.Context) error {
	pending, err := o.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("listing pending runs: %w", err)
	}
	for _, run := range pending {
		if run.CurrentPhase == types.PhaseAwaitingClarification {
			o.logger.Info("run awaiting clarification", zap.String("run_id", run.RunID))
			continue
		}
		o.logger.Info("resuming run",
			zap.String("run_id", run.RunID),
			zap.String("phase", string(run.CurrentPhase)))
		o.launch(run)
	}
	return nil
}

// Close cancels every in-flight run and waits for their goroutines. The
// canceled runs checkpoint as failed and would be resumable only from
// their error trail; Close is for process shutdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, h := range o.active {
		h.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) load(ctx context.Context, runID string) (*types.ResearchRun, error) {
	run, err := o.store.Load(ctx, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// launch registers the run and starts its driving goroutine. Each run
// gets an independent lifetime; Cancel and Close go through the stored
// cancel func.
func (o *Orchestrator) launch(run *types.ResearchRun) {
	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel}

	o.mu.Lock()
	o.active[run.RunID] = h
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer o.release(run.RunID, h)
		o.execute(runCtx, run)
	}()
}

// release removes the run's registry entry, but only if it still belongs
// to this handle. An exiting driver must not evict a successor that
// Clarify registered in the meantime.
func (o *Orchestrator) release(runID string, h *runHandle) {
	o.mu.Lock()
	if o.active[runID] == h {
		delete(o.active, runID)
	}
	o.mu.Unlock()
}

// phaseOrder is the forward progression of the pipeline.
var phaseOrder = []types.Phase{
	types.PhaseIntake,
	types.PhasePlanning,
	types.PhaseSearching,
	types.PhaseFetching,
	types.PhaseRanking,
	types.PhaseSynthesizing,
	types.PhaseWriting,
}

// phaseWeights apportions progress across phases by expected cost.
var phaseWeights = map[types.Phase]float64{
	types.PhaseIntake:       5,
	types.PhasePlanning:     5,
	types.PhaseSearching:    20,
	types.PhaseFetching:     30,
	types.PhaseRanking:      10,
	types.PhaseSynthesizing: 15,
	types.PhaseWriting:      15,
}

// progress estimates completion as the weight of finished phases plus
// the in-flight phase's weight scaled by its sub-task completion
// fraction (waves searched, sub-questions fetched or synthesized),
// 0-100.
func progress(run *types.ResearchRun) float64 {
	current := run.CurrentPhase
	switch current {
	case types.PhaseDone:
		return 100
	case types.PhaseAwaitingClarification:
		return phaseWeights[types.PhaseIntake] / 2
	case types.PhaseFailed:
		// Report the weight completed before the failure; the error trail
		// carries the failing phase.
		if len(run.Errors) == 0 {
			return 0
		}
		current = run.Errors[len(run.Errors)-1].Phase
	}

	frac := run.PhaseFraction
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	var done float64
	for _, p := range phaseOrder {
		if p == current {
			return done + phaseWeights[p]*frac
		}
		done += phaseWeights[p]
	}
	return done
}

func newRun(query string, cfg types.RunConfig) *types.ResearchRun {
	return &types.ResearchRun{
		RunID:          uuid.NewString(),
		OriginalQuery:  query,
		ClarifiedQuery: query,
		CurrentPhase:   types.PhaseIntake,
		Config:         cfg,
		CreatedAt:      nowUTC(),
	}
}
