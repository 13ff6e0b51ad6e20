// Package websearch runs career-research queries against a metasearch
// backend, with results cached in the shared entry store keyed by query
// and search type.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/pathlight/pathlight/internal/cache"
)

const (
	// maxResults is how many results one provider call fetches and the
	// cache stores. The cache key carries no limit, so a cached set must
	// satisfy any later request against the same query and type.
	maxResults = 25
)

// Service answers search queries read-through style.
type Service struct {
	provider Provider
	cache    *cache.Keyed
	reranker Reranker
	enricher *Enricher
	limit    int
}

// NewService wires a search service. reranker may be nil for provider
// order; enricher may be nil to skip page enrichment; defaultLimit <= 0
// falls back to 10 results.
func NewService(provider Provider, c *cache.Keyed, reranker Reranker, enricher *Enricher, defaultLimit int) *Service {
	if reranker == nil {
		reranker = &NoOpReranker{}
	}
	if defaultLimit <= 0 || defaultLimit > maxResults {
		defaultLimit = 10
	}
	return &Service{provider: provider, cache: c, reranker: reranker, enricher: enricher, limit: defaultLimit}
}

// Response is a search answer. FromDatabase reports whether the results
// came from the cache rather than a live provider call.
type Response struct {
	Query        string     `json:"query"`
	Type         SearchType `json:"type"`
	Results      []Result   `json:"results"`
	FromDatabase bool       `json:"from_database"`
}

// Search returns up to limit results for the query. A cached result set
// for the same normalized query and type is served without touching the
// provider; otherwise the provider is queried, results are enriched and
// reranked, and the set is written back before returning.
func (s *Service) Search(ctx context.Context, query string, typ SearchType, limit int) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, fmt.Errorf("empty search query")
	}
	if typ == "" {
		typ = TypeWeb
	}
	if !typ.Valid() {
		return Response{}, fmt.Errorf("unknown search type %q", typ)
	}
	if limit <= 0 {
		limit = s.limit
	}
	if limit > maxResults {
		limit = maxResults
	}

	res, err := s.cache.Fetch(ctx, cacheKey(typ, query), func(ctx context.Context) (json.RawMessage, error) {
		results, err := s.provider.Search(ctx, query, typ, maxResults)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", query, err)
		}
		if s.enricher != nil {
			s.enricher.Enrich(ctx, results)
		}
		ranked, err := s.reranker.Rerank(ctx, query, results)
		if err != nil {
			slog.Warn("rerank failed, keeping provider order", "query", query, "error", err)
		} else {
			results = ranked
		}
		if results == nil {
			results = []Result{}
		}
		return json.Marshal(results)
	})
	if err != nil {
		return Response{}, err
	}

	var results []Result
	if err := json.Unmarshal(res.Payload, &results); err != nil {
		return Response{}, fmt.Errorf("decoding cached results: %w", err)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return Response{
		Query:        query,
		Type:         typ,
		Results:      results,
		FromDatabase: res.FromDatabase,
	}, nil
}

// cacheKey builds the store key for a query and type. The query is
// case-folded and whitespace-collapsed first so trivially different
// spellings share an entry.
func cacheKey(typ SearchType, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return fmt.Sprintf("search:%s:%016x", typ, xxhash.Sum64String(normalized))
}
