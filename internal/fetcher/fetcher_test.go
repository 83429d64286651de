// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/pkg/types"
)

func testCfg() types.FetchConfig {
	return types.FetchConfig{
		HTTPConfig:       types.HTTPConfig{UserAgent: "test/0.1"},
		Concurrency:      4,
		FetchTimeout:     time.Second,
		MaxDocumentBytes: 1 << 20,
	}
}

func result(url string) types.SearchResult {
	return types.SearchResult{SourceURL: url, Title: "t"}
}

const samplePage = `<html><head><script>var x=1;</script><style>p{}</style></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Write Performance</h1>
<p>PostgreSQL groups commits to amortize fsync cost.</p>
<p>MySQL's InnoDB uses a redo log with group commit as well.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestFetchExtractsReadableText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	}))
	defer ts.Close()

	f := New(ts.Client(), testCfg(), zap.NewNop())
	docs := f.FetchAll(context.Background(), []types.SearchResult{result(ts.URL)})

	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc.ExtractionError != "" {
		t.Fatalf("extraction error: %s", doc.ExtractionError)
	}
	if !strings.Contains(doc.ExtractedText, "amortize fsync cost") {
		t.Errorf("extracted text missing article body: %q", doc.ExtractedText)
	}
	if strings.Contains(doc.ExtractedText, "var x=1") || strings.Contains(doc.ExtractedText, "Home | About") {
		t.Errorf("extracted text contains boilerplate: %q", doc.ExtractedText)
	}
	if doc.ContentLength != len(doc.ExtractedText) {
		t.Errorf("content length = %d, want %d", doc.ContentLength, len(doc.ExtractedText))
	}
}

func TestFetchNonTextContentFailsSoftly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer ts.Close()

	f := New(ts.Client(), testCfg(), zap.NewNop())
	docs := f.FetchAll(context.Background(), []types.SearchResult{result(ts.URL)})

	if docs[0].ExtractionError == "" {
		t.Fatal("expected extraction error for non-text content")
	}
	if docs[0].ExtractedText != "" {
		t.Errorf("extracted text should be empty, got %q", docs[0].ExtractedText)
	}
	if !docs[0].Failed() {
		t.Error("document should report failed")
	}
}

func TestFetchTimeoutFailsSoftly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		fmt.Fprint(w, "<html><body><p>late</p></body></html>")
	}))
	defer ts.Close()

	cfg := testCfg()
	cfg.FetchTimeout = 20 * time.Millisecond

	f := New(ts.Client(), cfg, zap.NewNop())
	docs := f.FetchAll(context.Background(), []types.SearchResult{result(ts.URL)})

	if docs[0].ExtractionError == "" {
		t.Fatal("expected extraction error after timeout")
	}
}

func TestFetchHTTPErrorFailsSoftly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(ts.Client(), testCfg(), zap.NewNop())
	docs := f.FetchAll(context.Background(), []types.SearchResult{result(ts.URL)})

	if !strings.Contains(docs[0].ExtractionError, "HTTP 404") {
		t.Errorf("extraction error = %q, want HTTP 404", docs[0].ExtractionError)
	}
}

func TestFetchRespectsConcurrencyCap(t *testing.T) {
	var inFlight, peak int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>ok</p></body></html>")
	}))
	defer ts.Close()

	cfg := testCfg()
	cfg.Concurrency = 3

	f := New(ts.Client(), cfg, zap.NewNop())
	var results []types.SearchResult
	for i := 0; i < 12; i++ {
		results = append(results, result(fmt.Sprintf("%s/page/%d", ts.URL, i)))
	}

	docs := f.FetchAll(context.Background(), results)
	if len(docs) != 12 {
		t.Fatalf("len(docs) = %d, want 12", len(docs))
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency = %d, cap is 3", p)
	}
}

func TestFetchPreservesInputOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><p>page %s</p></body></html>", r.URL.Path)
	}))
	defer ts.Close()

	f := New(ts.Client(), testCfg(), zap.NewNop())
	results := []types.SearchResult{
		result(ts.URL + "/first"),
		result(ts.URL + "/second"),
	}
	docs := f.FetchAll(context.Background(), results)

	if !strings.HasSuffix(docs[0].SourceURL, "/first") || !strings.HasSuffix(docs[1].SourceURL, "/second") {
		t.Errorf("document order does not match input order: %v, %v", docs[0].SourceURL, docs[1].SourceURL)
	}
}

func TestExtractReadableTextPlainBody(t *testing.T) {
	text, err := ExtractReadableText(strings.NewReader("<html><body>bare text only</body></html>"))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if text != "bare text only" {
		t.Errorf("text = %q", text)
	}
}
