package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func searxJSON(results ...searxResult) []byte {
	b, _ := json.Marshal(searxResponse{Results: results})
	return b
}

func TestSearXNG_Search(t *testing.T) {
	var gotQuery, gotFormat, gotCategories string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = q.Get("q")
		gotFormat = q.Get("format")
		gotCategories = q.Get("categories")
		w.Write(searxJSON(
			searxResult{Title: "Go roadmap", URL: "https://example.com/go", Content: "a roadmap", Engine: "ddg", Score: 4.2},
			searxResult{Title: "Untitled", URL: "https://example.com/other"},
		))
	}))
	defer srv.Close()

	c := NewSearXNG(srv.URL)
	results, err := c.Search(context.Background(), "go backend roadmap", TypeWeb, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "go backend roadmap" {
		t.Errorf("q = %q", gotQuery)
	}
	if gotFormat != "json" {
		t.Errorf("format = %q, want json", gotFormat)
	}
	if gotCategories != "general" {
		t.Errorf("categories = %q, want general", gotCategories)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Go roadmap" || results[0].Snippet != "a roadmap" || results[0].Engine != "ddg" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[0].Score != 4.2 {
		t.Errorf("results[0].Score = %g, want 4.2", results[0].Score)
	}
}

func TestSearXNG_CategoryMapping(t *testing.T) {
	cases := []struct {
		typ  SearchType
		want string
	}{
		{TypeWeb, "general"},
		{TypeNews, "news"},
		{TypeVideos, "videos"},
	}
	for _, tc := range cases {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("categories")
			w.Write(searxJSON())
		}))
		if _, err := NewSearXNG(srv.URL).Search(context.Background(), "q", tc.typ, 5); err != nil {
			t.Fatalf("Search(%s): %v", tc.typ, err)
		}
		srv.Close()
		if got != tc.want {
			t.Errorf("type %s: categories = %q, want %q", tc.typ, got, tc.want)
		}
	}
}

func TestSearXNG_LimitTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(searxJSON(
			searxResult{Title: "a", URL: "https://a"},
			searxResult{Title: "b", URL: "https://b"},
			searxResult{Title: "c", URL: "https://c"},
		))
	}))
	defer srv.Close()

	results, err := NewSearXNG(srv.URL).Search(context.Background(), "q", TypeWeb, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearXNG_SkipsEmptyURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(searxJSON(
			searxResult{Title: "no url"},
			searxResult{Title: "ok", URL: "https://ok"},
		))
	}))
	defer srv.Close()

	results, err := NewSearXNG(srv.URL).Search(context.Background(), "q", TypeWeb, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "ok" {
		t.Errorf("results = %+v, want the single URL-bearing result", results)
	}
}

func TestSearXNG_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewSearXNG(srv.URL).Search(context.Background(), "q", TypeWeb, 10); err == nil {
		t.Error("expected error on non-200 response")
	}
}
