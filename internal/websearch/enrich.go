package websearch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	// enrichLimit caps how many result pages one search fetches.
	enrichLimit = 8

	// pageByteLimit bounds how much of a page is read; descriptions live
	// in <head>, so the first chunk is enough.
	pageByteLimit = 512 * 1024

	pageTimeout = 3 * time.Second
)

// Enricher fills missing result snippets by fetching the result pages
// and extracting their meta description or title. Enrichment is
// best-effort: unreachable or unparseable pages leave the result as-is.
type Enricher struct {
	httpClient *http.Client
}

// NewEnricher creates an Enricher with its own HTTP client.
func NewEnricher() *Enricher {
	return &Enricher{
		httpClient: &http.Client{
			Timeout: pageTimeout,
		},
	}
}

// Enrich fetches pages for results missing a snippet, concurrently with
// bounded parallelism, and fills snippets in place.
func (e *Enricher) Enrich(ctx context.Context, results []Result) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	fetched := 0
	for i := range results {
		if results[i].Snippet != "" {
			continue
		}
		if fetched >= enrichLimit {
			break
		}
		fetched++

		i := i
		g.Go(func() error {
			title, desc := e.fetchSummary(gCtx, results[i].URL)
			if desc != "" {
				results[i].Snippet = desc
			}
			if results[i].Title == "" && title != "" {
				results[i].Title = title
			}
			return nil
		})
	}
	g.Wait()
}

// fetchSummary downloads a page and extracts its title and description.
// Failures return empty strings.
func (e *Enricher) fetchSummary(ctx context.Context, pageURL string) (title, desc string) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", ""
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ""
	}

	return pageSummary(io.LimitReader(resp.Body, pageByteLimit))
}

// pageSummary parses HTML and returns the document title and the first
// meta description (name="description" preferred, og:description as
// fallback).
func pageSummary(r io.Reader) (title, desc string) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", ""
	}

	var ogDesc string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "name":
						name = a.Val
					case "property":
						property = a.Val
					case "content":
						content = a.Val
					}
				}
				if name == "description" && desc == "" {
					desc = strings.TrimSpace(content)
				}
				if property == "og:description" && ogDesc == "" {
					ogDesc = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if desc == "" {
		desc = ogDesc
	}
	return title, desc
}
