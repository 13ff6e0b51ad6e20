package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchType selects which vertical a query runs against.
type SearchType string

const (
	TypeWeb    SearchType = "web"
	TypeNews   SearchType = "news"
	TypeVideos SearchType = "videos"
)

// Valid reports whether t is a known search type.
func (t SearchType) Valid() bool {
	switch t {
	case TypeWeb, TypeNews, TypeVideos:
		return true
	}
	return false
}

// category maps the search type to a SearXNG category name.
func (t SearchType) category() string {
	switch t {
	case TypeNews:
		return "news"
	case TypeVideos:
		return "videos"
	default:
		return "general"
	}
}

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet,omitempty"`
	Engine  string  `json:"engine,omitempty"`
	Score   float32 `json:"score,omitempty"`
}

// Provider is a metasearch backend.
type Provider interface {
	Search(ctx context.Context, query string, typ SearchType, limit int) ([]Result, error)
}

// SearXNG queries a SearXNG instance's JSON API.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a client for the SearXNG instance at baseURL.
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// searxResponse mirrors the JSON returned by GET /search?format=json.
type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Engine  string  `json:"engine"`
	Score   float32 `json:"score"`
}

// Search runs the query against the instance and returns at most limit results.
func (s *SearXNG) Search(ctx context.Context, query string, typ SearchType, limit int) ([]Result, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("categories", typ.category())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	var sr searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Engine:  r.Engine,
			Score:   r.Score,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
