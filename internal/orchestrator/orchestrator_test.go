// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/checkpoint"
	"github.com/meshintel/deepresearch/internal/fetcher"
	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/pkg/types"
)

// --- test doubles ---

// stubEngine scripts the three reasoning calls.
type stubEngine struct {
	classification reasoning.Classification
	classifyErr    error
	decomposed     []reasoning.DecomposedQuestion
	decomposeErr   error
	synthesis      reasoning.Synthesis
	synthesizeErr  error
}

func (e *stubEngine) Classify(context.Context, string) (reasoning.Classification, error) {
	return e.classification, e.classifyErr
}

func (e *stubEngine) Decompose(context.Context, string, string, int) ([]reasoning.DecomposedQuestion, error) {
	return e.decomposed, e.decomposeErr
}

func (e *stubEngine) Synthesize(_ context.Context, _ string, excerpts []reasoning.SourceExcerpt) (reasoning.Synthesis, error) {
	if e.synthesizeErr != nil {
		return reasoning.Synthesis{}, e.synthesizeErr
	}
	syn := e.synthesis
	if len(syn.SupportingSourceURLs) == 0 {
		for _, ex := range excerpts {
			syn.SupportingSourceURLs = append(syn.SupportingSourceURLs, ex.SourceURL)
		}
	}
	return syn, nil
}

// stubBackend returns canned results, per-query results via searchFn,
// or a provider error.
type stubBackend struct {
	name     string
	kind     types.ProviderKind
	results  []types.SearchResult
	searchFn func(query string) []types.SearchResult
	err      error
}

func (b *stubBackend) Name() string               { return b.name }
func (b *stubBackend) Kind() types.ProviderKind   { return b.kind }
func (b *stubBackend) Ping(context.Context) error { return b.err }

func (b *stubBackend) Search(_ context.Context, query string, _ provider.Options) ([]types.SearchResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.searchFn != nil {
		return b.searchFn(query), nil
	}
	return b.results, nil
}

// testHarness wires an orchestrator around an httptest content server.
type testHarness struct {
	orch   *Orchestrator
	store  checkpoint.Store
	server *httptest.Server
}

func newHarness(t *testing.T, engine reasoning.Engine, backends []provider.Backend) *testHarness {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><article><h1>Write paths</h1><p>Database write paths batch commits to amortize fsync cost across transactions.</p></article></body></html>")
	}))
	t.Cleanup(server.Close)

	cfg := types.PipelineConfig{}.WithDefaults()
	cfg.Orchestrator.RunBudget = 10 * time.Second

	store := checkpoint.NewMemoryStore()
	f := fetcher.New(server.Client(), cfg.Fetch, zap.NewNop())
	orch := New(store, engine, backends, f, cfg, zap.NewNop())
	t.Cleanup(orch.Close)

	return &testHarness{orch: orch, store: store, server: server}
}

func (h *testHarness) backendResults(n int) []types.SearchResult {
	var results []types.SearchResult
	for i := 0; i < n; i++ {
		results = append(results, types.SearchResult{
			SourceURL:   fmt.Sprintf("%s/doc/%d", h.server.URL, i),
			Title:       fmt.Sprintf("Document %d", i),
			ProviderTag: "stub",
		})
	}
	return results
}

// waitForPhase polls the store until the run reaches the phase or the
// deadline passes.
func waitForPhase(t *testing.T, store checkpoint.Store, runID string, want types.Phase) *types.ResearchRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.Load(context.Background(), runID)
		if err == nil && run.CurrentPhase == want {
			return run
		}
		if err == nil && run.CurrentPhase.Terminal() && run.CurrentPhase != want {
			t.Fatalf("run reached %s, want %s; errors: %+v", run.CurrentPhase, want, run.Errors)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached phase %s", runID, want)
	return nil
}

func happyEngine() *stubEngine {
	return &stubEngine{
		classification: reasoning.Classification{IntentTag: "comparison", DomainTag: "databases"},
		decomposed: []reasoning.DecomposedQuestion{
			{ID: "q1", Text: "How does the first system batch writes?"},
			{ID: "q2", Text: "How does the second system batch writes?", DependsOn: []string{"q1"}},
		},
		synthesis: reasoning.Synthesis{AnswerText: "Writes are batched to amortize fsync.", Agreement: 0.9},
	}
}

// --- tests ---

func TestStartValidation(t *testing.T) {
	h := newHarness(t, happyEngine(), nil)

	tests := []struct {
		name  string
		query string
		cfg   types.RunConfig
	}{
		{"empty query", "   ", types.RunConfig{}},
		{"max_sources too large", "q", types.RunConfig{MaxSources: 501}},
		{"max_sources negative", "q", types.RunConfig{MaxSources: -1}},
		{"max_depth too large", "q", types.RunConfig{MaxDepth: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.Start(context.Background(), tt.query, tt.cfg)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Start = %v, want ValidationError", err)
			}
		})
	}
}

func TestRunCompletesEndToEnd(t *testing.T) {
	engine := happyEngine()
	h := newHarness(t, engine, nil)
	backend := &stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(3)}
	h.orch.backends = []provider.Backend{backend}

	run, err := h.orch.Start(context.Background(), "compare database write paths", types.RunConfig{})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("Start returned empty run ID")
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)

	if done.Report == nil {
		t.Fatal("completed run has no report")
	}
	if len(done.Findings) != 2 {
		t.Errorf("findings = %d, want one per sub-question", len(done.Findings))
	}
	if len(done.Report.Citations) == 0 {
		t.Error("report has no citations")
	}
	for _, p := range []types.Phase{types.PhaseIntake, types.PhaseSearching, types.PhaseWriting} {
		if _, ok := done.PhaseDurations[p]; !ok {
			t.Errorf("no duration recorded for phase %s", p)
		}
	}

	status, err := h.orch.Status(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Progress != 100 {
		t.Errorf("progress = %f, want 100", status.Progress)
	}

	body, ct, err := h.orch.Report(context.Background(), run.RunID, "markdown")
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if len(body) == 0 || ct == "" {
		t.Errorf("empty report body or content type")
	}
}

func TestClarificationDetour(t *testing.T) {
	engine := happyEngine()
	engine.classification.NeedsClarification = true
	engine.classification.ClarifyingQuestion = "Which two systems?"
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(2)},
	}

	run, err := h.orch.Start(context.Background(), "compare write paths", types.RunConfig{})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	waitForPhase(t, h.store, run.RunID, types.PhaseAwaitingClarification)

	status, err := h.orch.Status(context.Background(), run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if status.ClarifyingQuestion != "Which two systems?" {
		t.Errorf("clarifying question = %q", status.ClarifyingQuestion)
	}

	// Clarify resumes through intake; the classifier still reports
	// NeedsClarification, but a run is only detoured once.
	if err := h.orch.Clarify(context.Background(), run.RunID, "PostgreSQL and MySQL"); err != nil {
		t.Fatalf("Clarify returned error: %v", err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)
	if done.ClarifiedQuery == done.OriginalQuery {
		t.Error("clarified query should differ from the original")
	}

	// A second clarify on the completed run is an invalid-state error.
	err = h.orch.Clarify(context.Background(), run.RunID, "again")
	var serr *InvalidStateError
	if !errors.As(err, &serr) {
		t.Errorf("Clarify on done run = %v, want InvalidStateError", err)
	}
}

func TestFatalDecompositionFailsRun(t *testing.T) {
	engine := happyEngine()
	engine.decomposed = []reasoning.DecomposedQuestion{
		{ID: "a", Text: "first", DependsOn: []string{"b"}},
		{ID: "b", Text: "second", DependsOn: []string{"a"}},
	}
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(1)},
	}

	run, err := h.orch.Start(context.Background(), "q", types.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var failed *types.ResearchRun
	for time.Now().Before(deadline) {
		r, err := h.store.Load(context.Background(), run.RunID)
		if err == nil && r.CurrentPhase == types.PhaseFailed {
			failed = r
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if failed == nil {
		t.Fatal("run never failed")
	}
	if len(failed.Errors) == 0 || failed.Errors[len(failed.Errors)-1].Recoverable {
		t.Errorf("want a fatal error recorded, got %+v", failed.Errors)
	}
}

func TestProviderFailureIsRecoverable(t *testing.T) {
	engine := happyEngine()
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "good", kind: types.KindSemantic, results: h.backendResults(2)},
		&stubBackend{name: "bad", kind: types.KindKeyword, err: provider.ErrUnavailable},
	}

	run, err := h.orch.Start(context.Background(), "q", types.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)

	recoverable := 0
	for _, e := range done.Errors {
		if e.Recoverable && e.Phase == types.PhaseSearching {
			recoverable++
		}
	}
	if recoverable == 0 {
		t.Error("provider failure was not recorded as a recoverable search error")
	}
}

func TestNoHitSubQuestionDegradesToUnanswered(t *testing.T) {
	engine := happyEngine()
	h := newHarness(t, engine, nil)
	// The provider succeeds for both sub-questions but only the first
	// produces hits.
	h.orch.backends = []provider.Backend{&stubBackend{
		name: "stub",
		kind: types.KindSemantic,
		searchFn: func(query string) []types.SearchResult {
			if strings.Contains(query, "first") {
				return h.backendResults(2)
			}
			return nil
		},
	}}

	run, err := h.orch.Start(context.Background(), "compare write paths", types.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)

	if !done.IsUnanswered("q2") {
		t.Errorf("q2 not marked unanswered; unanswered = %v", done.Unanswered)
	}
	recoverable := false
	for _, e := range done.Errors {
		if e.Recoverable && strings.Contains(e.Message, "q2") {
			recoverable = true
		}
	}
	if !recoverable {
		t.Errorf("no recoverable error recorded for q2: %+v", done.Errors)
	}

	lim := done.Report.Section(types.SectionLimitations)
	if lim == nil {
		t.Fatal("report has no Limitations section")
	}
	if !strings.Contains(lim.Body, "How does the second system batch writes?") {
		t.Errorf("Limitations does not identify the unanswered sub-question: %q", lim.Body)
	}
}

func TestSourceBudgetExhaustionDegradesLaterSubQuestions(t *testing.T) {
	engine := happyEngine()
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(3)},
	}

	// The budget covers q1's sources only; q2's are cut entirely.
	run, err := h.orch.Start(context.Background(), "compare write paths", types.RunConfig{MaxSources: 3})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)

	if !done.IsUnanswered("q2") {
		t.Errorf("q2 not marked unanswered; unanswered = %v", done.Unanswered)
	}
	if len(done.Documents["q2"]) != 0 {
		t.Errorf("q2 has %d documents despite an exhausted budget", len(done.Documents["q2"]))
	}
}

func TestCancelFailsRun(t *testing.T) {
	engine := happyEngine()
	// Park the run at the clarification detour so cancellation has a
	// stable target.
	engine.classification.NeedsClarification = true
	engine.classification.ClarifyingQuestion = "which?"
	h := newHarness(t, engine, nil)

	run, err := h.orch.Start(context.Background(), "q", types.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	waitForPhase(t, h.store, run.RunID, types.PhaseAwaitingClarification)

	if err := h.orch.Cancel(context.Background(), run.RunID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	failed := waitForPhase(t, h.store, run.RunID, types.PhaseFailed)
	if len(failed.Errors) == 0 {
		t.Error("canceled run has no error recorded")
	}

	// Terminal runs cannot be canceled again.
	err = h.orch.Cancel(context.Background(), run.RunID)
	var serr *InvalidStateError
	if !errors.As(err, &serr) {
		t.Errorf("Cancel on failed run = %v, want InvalidStateError", err)
	}
}

func TestResumeAllContinuesCheckpointedRun(t *testing.T) {
	engine := happyEngine()
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(2)},
	}

	// Simulate a run checkpointed mid-pipeline by a previous process.
	run := newRun("compare write paths", types.RunConfig{MaxSources: 10, MaxDepth: 3})
	run.CurrentPhase = types.PhaseSearching
	run.IntentTag = "comparison"
	run.DomainTag = "databases"
	run.Plan = &types.ResearchPlan{
		SubQuestions:   []types.SubQuestion{{ID: "q1", Text: "How are writes batched?"}},
		ExecutionOrder: [][]string{{"q1"}},
	}
	if err := h.store.Save(context.Background(), run); err != nil {
		t.Fatal(err)
	}

	if err := h.orch.ResumeAll(context.Background()); err != nil {
		t.Fatalf("ResumeAll returned error: %v", err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)
	// The pre-restart plan survives; intake and planning are not redone.
	if done.Plan == nil || len(done.Plan.SubQuestions) != 1 || done.Plan.SubQuestions[0].ID != "q1" {
		t.Errorf("plan changed across resume: %+v", done.Plan)
	}
	if done.Report == nil {
		t.Error("resumed run produced no report")
	}
}

func TestProgressScalesWithPhaseFraction(t *testing.T) {
	failedRun := &types.ResearchRun{CurrentPhase: types.PhaseFailed, PhaseFraction: 0.5}
	failedRun.RecordError(types.PhaseFetching, "run budget exceeded", false)

	tests := []struct {
		name string
		run  *types.ResearchRun
		want float64
	}{
		{"searching not started", &types.ResearchRun{CurrentPhase: types.PhaseSearching}, 10},
		{"searching half done", &types.ResearchRun{CurrentPhase: types.PhaseSearching, PhaseFraction: 0.5}, 20},
		{"searching done", &types.ResearchRun{CurrentPhase: types.PhaseSearching, PhaseFraction: 1}, 30},
		{"fetching half done", &types.ResearchRun{CurrentPhase: types.PhaseFetching, PhaseFraction: 0.5}, 45},
		{"done", &types.ResearchRun{CurrentPhase: types.PhaseDone}, 100},
		{"failed mid-fetch", failedRun, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progress(tt.run); got != tt.want {
				t.Errorf("progress = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitingDriverDoesNotEvictRelaunchedRun(t *testing.T) {
	h := newHarness(t, happyEngine(), nil)

	stale := &runHandle{cancel: func() {}}
	live := &runHandle{cancel: func() {}}
	h.orch.mu.Lock()
	h.orch.active["run-1"] = live
	h.orch.mu.Unlock()

	// A driver that checkpointed before the relaunch must not remove the
	// relaunched run's registry entry on exit.
	h.orch.release("run-1", stale)
	h.orch.mu.Lock()
	got := h.orch.active["run-1"]
	h.orch.mu.Unlock()
	if got != live {
		t.Fatalf("registry entry = %v, want the relaunched run's handle", got)
	}

	// The live driver's own release still cleans up.
	h.orch.release("run-1", live)
	h.orch.mu.Lock()
	_, present := h.orch.active["run-1"]
	h.orch.mu.Unlock()
	if present {
		t.Error("registry entry not removed by its own driver")
	}
}

func TestStatusUnknownRun(t *testing.T) {
	h := newHarness(t, happyEngine(), nil)
	_, err := h.orch.Status(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Status = %v, want ErrRunNotFound", err)
	}
}

func TestReportBeforeCompletion(t *testing.T) {
	engine := happyEngine()
	engine.classification.NeedsClarification = true
	engine.classification.ClarifyingQuestion = "which?"
	h := newHarness(t, engine, nil)

	run, err := h.orch.Start(context.Background(), "q", types.RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	waitForPhase(t, h.store, run.RunID, types.PhaseAwaitingClarification)

	_, _, err = h.orch.Report(context.Background(), run.RunID, "markdown")
	var serr *InvalidStateError
	if !errors.As(err, &serr) {
		t.Errorf("Report before done = %v, want InvalidStateError", err)
	}
}

func TestDepthTruncation(t *testing.T) {
	engine := happyEngine()
	engine.decomposed = []reasoning.DecomposedQuestion{
		{ID: "q1", Text: "level one"},
		{ID: "q2", Text: "level two", DependsOn: []string{"q1"}},
		{ID: "q3", Text: "level three", DependsOn: []string{"q2"}},
	}
	h := newHarness(t, engine, nil)
	h.orch.backends = []provider.Backend{
		&stubBackend{name: "stub", kind: types.KindSemantic, results: h.backendResults(2)},
	}

	run, err := h.orch.Start(context.Background(), "q", types.RunConfig{MaxDepth: 2})
	if err != nil {
		t.Fatal(err)
	}

	done := waitForPhase(t, h.store, run.RunID, types.PhaseDone)
	if len(done.Plan.ExecutionOrder) != 2 {
		t.Errorf("execution order has %d waves, want 2", len(done.Plan.ExecutionOrder))
	}
	if done.Plan.Question("q3") != nil {
		t.Error("q3 should have been truncated from the plan")
	}
}
