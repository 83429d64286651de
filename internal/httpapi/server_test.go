// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/checkpoint"
	"github.com/meshintel/deepresearch/internal/fetcher"
	"github.com/meshintel/deepresearch/internal/orchestrator"
	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/pkg/types"
)

// --- test doubles ---

type stubEngine struct {
	classification reasoning.Classification
}

func (e *stubEngine) Classify(context.Context, string) (reasoning.Classification, error) {
	return e.classification, nil
}

func (e *stubEngine) Decompose(context.Context, string, string, int) ([]reasoning.DecomposedQuestion, error) {
	return []reasoning.DecomposedQuestion{{ID: "q1", Text: "How are writes batched?"}}, nil
}

func (e *stubEngine) Synthesize(_ context.Context, _ string, excerpts []reasoning.SourceExcerpt) (reasoning.Synthesis, error) {
	syn := reasoning.Synthesis{AnswerText: "Writes are batched.", Agreement: 0.9}
	for _, ex := range excerpts {
		syn.SupportingSourceURLs = append(syn.SupportingSourceURLs, ex.SourceURL)
	}
	return syn, nil
}

type stubBackend struct {
	name    string
	results []types.SearchResult
	pingErr error
}

func (b *stubBackend) Name() string             { return b.name }
func (b *stubBackend) Kind() types.ProviderKind { return types.KindSemantic }
func (b *stubBackend) Ping(context.Context) error {
	return b.pingErr
}

func (b *stubBackend) Search(context.Context, string, provider.Options) ([]types.SearchResult, error) {
	return b.results, nil
}

func newTestAPI(t *testing.T, engine reasoning.Engine, backends []provider.Backend) (*httptest.Server, checkpoint.Store) {
	t.Helper()

	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><article><p>Writes are batched to amortize fsync cost.</p></article></body></html>")
	}))
	t.Cleanup(content.Close)

	if backends == nil {
		backends = []provider.Backend{&stubBackend{
			name: "stub",
			results: []types.SearchResult{
				{SourceURL: content.URL + "/a", Title: "A"},
				{SourceURL: content.URL + "/b", Title: "B"},
			},
		}}
	}

	cfg := types.PipelineConfig{}.WithDefaults()
	cfg.Orchestrator.RunBudget = 10 * time.Second

	store := checkpoint.NewMemoryStore()
	orch := orchestrator.New(store, engine, backends,
		fetcher.New(content.Client(), cfg.Fetch, zap.NewNop()), cfg, zap.NewNop())
	t.Cleanup(orch.Close)

	api := httptest.NewServer(NewServer(orch, backends, zap.NewNop()).Router())
	t.Cleanup(api.Close)
	return api, store
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func waitDone(t *testing.T, api string, runID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := doJSON(t, http.MethodGet, api+"/research/"+runID, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status endpoint returned %d", resp.StatusCode)
		}
		switch body["phase"] {
		case string(types.PhaseDone):
			return
		case string(types.PhaseFailed):
			t.Fatalf("run failed: %+v", body["errors"])
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run never completed")
}

// --- tests ---

func TestStartRejectsInvalidRequests(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  "}`},
		{"bad json", `{`},
		{"max_sources too large", `{"query":"q","max_sources":9999}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, api.URL+"/research", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestResearchLifecycle(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{}, nil)

	resp, body := doJSON(t, http.MethodPost, api.URL+"/research", `{"query":"how are writes batched"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", resp.StatusCode)
	}
	runID, _ := body["run_id"].(string)
	if runID == "" {
		t.Fatalf("no run_id in response: %+v", body)
	}

	waitDone(t, api.URL, runID)

	req, _ := http.NewRequest(http.MethodGet, api.URL+"/research/"+runID+"/report?format=markdown", nil)
	reportResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer reportResp.Body.Close()
	if reportResp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, want 200", reportResp.StatusCode)
	}
	if ct := reportResp.Header.Get("Content-Type"); !strings.Contains(ct, "markdown") {
		t.Errorf("content type = %q", ct)
	}

	citeResp, citeBody := doJSON(t, http.MethodGet, api.URL+"/research/"+runID+"/citations", "")
	if citeResp.StatusCode != http.StatusOK {
		t.Fatalf("citations status = %d, want 200", citeResp.StatusCode)
	}
	if _, ok := citeBody["citations"]; !ok {
		t.Errorf("citations body = %+v", citeBody)
	}

	resp, _ = doJSON(t, http.MethodGet, api.URL+"/research/"+runID+"/report?format=pdf", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownRunIs404(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{}, nil)

	for _, path := range []string{
		"/research/nope",
		"/research/nope/report",
		"/research/nope/citations",
	} {
		resp, _ := doJSON(t, http.MethodGet, api.URL+path, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestClarifyFlow(t *testing.T) {
	engine := &stubEngine{classification: reasoning.Classification{
		NeedsClarification: true,
		ClarifyingQuestion: "Which systems?",
	}}
	api, _ := newTestAPI(t, engine, nil)

	_, body := doJSON(t, http.MethodPost, api.URL+"/research", `{"query":"compare them"}`)
	runID := body["run_id"].(string)

	// Wait for the detour, then confirm the question is surfaced and the
	// report is refused with a conflict.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, status := doJSON(t, http.MethodGet, api.URL+"/research/"+runID, "")
		if status["phase"] == string(types.PhaseAwaitingClarification) {
			if status["clarifying_question"] != "Which systems?" {
				t.Errorf("clarifying question = %v", status["clarifying_question"])
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, _ := doJSON(t, http.MethodGet, api.URL+"/research/"+runID+"/report", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("report while awaiting = %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, api.URL+"/research/"+runID+"/clarify", `{"answer":"PostgreSQL and MySQL"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clarify status = %d, want 200", resp.StatusCode)
	}

	waitDone(t, api.URL, runID)

	// Clarifying a completed run conflicts.
	resp, _ = doJSON(t, http.MethodPost, api.URL+"/research/"+runID+"/clarify", `{"answer":"again"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("clarify after done = %d, want 409", resp.StatusCode)
	}
}

func TestDeleteRun(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{}, nil)

	_, body := doJSON(t, http.MethodPost, api.URL+"/research", `{"query":"how are writes batched"}`)
	runID := body["run_id"].(string)

	// In-flight (or just-finished) runs can only be deleted once terminal;
	// wait for completion first.
	waitDone(t, api.URL, runID)

	resp, _ := doJSON(t, http.MethodDelete, api.URL+"/research/"+runID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, api.URL+"/research/"+runID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", resp.StatusCode)
	}
}

func TestHealthStates(t *testing.T) {
	tests := []struct {
		name       string
		backends   []provider.Backend
		wantStatus string
		wantCode   int
	}{
		{
			"all reachable",
			[]provider.Backend{&stubBackend{name: "a"}, &stubBackend{name: "b"}},
			"ok", http.StatusOK,
		},
		{
			"one unreachable",
			[]provider.Backend{&stubBackend{name: "a"}, &stubBackend{name: "b", pingErr: provider.ErrUnavailable}},
			"degraded", http.StatusOK,
		},
		{
			"all unreachable",
			[]provider.Backend{&stubBackend{name: "a", pingErr: provider.ErrUnavailable}},
			"degraded", http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestAPI(t, &stubEngine{}, tt.backends)
			resp, body := doJSON(t, http.MethodGet, api.URL+"/research/health", "")
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}

			providers, ok := body["providers"].(map[string]any)
			if !ok {
				t.Fatalf("providers = %v, want a name-to-bool map", body["providers"])
			}
			for _, b := range tt.backends {
				sb := b.(*stubBackend)
				if up, _ := providers[sb.name].(bool); up != (sb.pingErr == nil) {
					t.Errorf("providers[%q] = %v, want %v", sb.name, providers[sb.name], sb.pingErr == nil)
				}
			}
		})
	}
}

func TestHealthIsCached(t *testing.T) {
	backend := &stubBackend{name: "a"}
	api, _ := newTestAPI(t, &stubEngine{}, []provider.Backend{backend})

	_, first := doJSON(t, http.MethodGet, api.URL+"/research/health", "")
	if first["status"] != "ok" {
		t.Fatalf("first status = %v", first["status"])
	}

	// The backend starts failing, but the cached verdict holds for the
	// TTL.
	backend.pingErr = provider.ErrUnavailable
	_, second := doJSON(t, http.MethodGet, api.URL+"/research/health", "")
	if second["status"] != "ok" {
		t.Errorf("cached status = %v, want ok", second["status"])
	}
}
