package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const descPage = `<!DOCTYPE html>
<html><head>
<title>Backend Roadmap</title>
<meta name="description" content="A step by step guide to backend development.">
</head><body><p>body text</p></body></html>`

const ogPage = `<html><head>
<title>Og Only</title>
<meta property="og:description" content="Social summary.">
</head><body></body></html>`

func TestPageSummary_MetaDescription(t *testing.T) {
	title, desc := pageSummary(strings.NewReader(descPage))
	if title != "Backend Roadmap" {
		t.Errorf("title = %q", title)
	}
	if desc != "A step by step guide to backend development." {
		t.Errorf("desc = %q", desc)
	}
}

func TestPageSummary_OGFallback(t *testing.T) {
	title, desc := pageSummary(strings.NewReader(ogPage))
	if title != "Og Only" {
		t.Errorf("title = %q", title)
	}
	if desc != "Social summary." {
		t.Errorf("desc = %q, want og:description fallback", desc)
	}
}

func TestPageSummary_NoMetadata(t *testing.T) {
	_, desc := pageSummary(strings.NewReader("<html><body>plain</body></html>"))
	if desc != "" {
		t.Errorf("desc = %q, want empty", desc)
	}
}

func TestEnrich_FillsMissingSnippets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(descPage))
	}))
	defer srv.Close()

	results := []Result{
		{Title: "has snippet", URL: srv.URL + "/a", Snippet: "already here"},
		{Title: "missing", URL: srv.URL + "/b"},
	}

	NewEnricher().Enrich(context.Background(), results)

	if results[0].Snippet != "already here" {
		t.Errorf("existing snippet overwritten: %q", results[0].Snippet)
	}
	if results[1].Snippet != "A step by step guide to backend development." {
		t.Errorf("missing snippet not filled: %q", results[1].Snippet)
	}
}

func TestEnrich_UnreachablePageIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	results := []Result{{Title: "dead", URL: srv.URL}}
	NewEnricher().Enrich(context.Background(), results)

	if results[0].Snippet != "" {
		t.Errorf("snippet = %q, want empty for unreachable page", results[0].Snippet)
	}
}

func TestEnrich_CapsPageFetches(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(descPage))
	}))
	defer srv.Close()

	results := make([]Result, enrichLimit+5)
	for i := range results {
		results[i] = Result{Title: "r", URL: srv.URL}
	}
	NewEnricher().Enrich(context.Background(), results)

	if got := fetches.Load(); got != enrichLimit {
		t.Errorf("fetched %d pages, want %d", got, enrichLimit)
	}
}
