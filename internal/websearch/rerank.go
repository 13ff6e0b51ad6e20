package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathlight/pathlight/internal/engine"
)

const defaultConcurrency = 3

// Reranker re-orders search results by query relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result) ([]Result, error)
}

// RerankMode selects the reranking strategy.
type RerankMode string

const (
	RerankOff   RerankMode = "off"
	RerankEmbed RerankMode = "embed"
	RerankLLM   RerankMode = "llm"
)

// NewReranker builds the reranker for the given mode. A nil engine or an
// unknown mode yields the pass-through reranker.
func NewReranker(eng engine.Engine, mode RerankMode, chatModel, embedModel string, timeout time.Duration, threshold float64) Reranker {
	if eng == nil {
		return &NoOpReranker{}
	}
	switch mode {
	case RerankLLM:
		return &LLMReranker{engine: eng, model: chatModel, timeout: timeout, threshold: threshold}
	case RerankEmbed:
		return &EmbedReranker{engine: eng, model: embedModel, timeout: timeout}
	default:
		return &NoOpReranker{}
	}
}

// LLMReranker scores each (query, result) pair with a chat model.
// Scoring runs concurrently (bounded to defaultConcurrency goroutines).
// Results are filtered by threshold and sorted by score descending.
type LLMReranker struct {
	engine    engine.Engine
	model     string
	timeout   time.Duration
	threshold float64
}

// Rerank scores each result against the query and returns a filtered,
// sorted result set. If the timeout fires before scoring completes, the
// original order is returned unchanged (graceful degradation).
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered channel prevents goroutines from blocking on send after we stop reading.
	scoredCh := make(chan Result, len(results))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, res := range results {
		wg.Add(1)
		go func(res Result) {
			defer wg.Done()
			// Acquire concurrency slot or bail on cancellation.
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.scoreResult(timeoutCtx, query, res)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return
				}
				slog.Debug("reranker: score failed, retaining original", "url", res.URL, "error", err)
				scoredCh <- res // original score preserved
				return
			}
			res.Score = float32(score)
			scoredCh <- res
		}(res)
	}

	go func() {
		wg.Wait()
		close(scoredCh)
	}()

	scored := make([]Result, 0, len(results))
collect:
	for {
		select {
		case res, ok := <-scoredCh:
			if !ok {
				break collect
			}
			scored = append(scored, res)
		case <-timeoutCtx.Done():
			// Hard timeout before scoring completed: graceful degradation.
			return results, nil
		}
	}

	if len(scored) == 0 {
		return results, nil
	}

	// Filter results below the relevance threshold.
	filtered := make([]Result, 0, len(scored))
	for _, res := range scored {
		if float64(res.Score) >= r.threshold {
			filtered = append(filtered, res)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return filtered, nil
}

func (r *LLMReranker) scoreResult(ctx context.Context, query string, res Result) (float64, error) {
	prompt := "Rate the relevance of the following search result to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Title: " + res.Title + "\n" +
		"Text: " + res.Snippet + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return float64(res.Score), err
	}

	score, parseErr := parseScore(resp, res.Score)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using original score", "resp", resp, "error", parseErr)
		return float64(res.Score), nil
	}
	return score, nil
}

// parseScore robustly extracts a relevance score float from an LLM response.
// Small local models frequently wrap JSON in markdown code fences or prepend
// conversational filler. The parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
//  4. On failure: returns originalScore so the result is not penalised
func parseScore(resp string, originalScore float32) (float64, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	// Extract JSON object by brace position.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return float64(originalScore), fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return float64(originalScore), fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// EmbedReranker orders results by cosine similarity between the query
// embedding and each result's title plus snippet. Cheaper than LLM
// scoring but does not filter: every result survives, re-ordered.
type EmbedReranker struct {
	engine  engine.Engine
	model   string
	timeout time.Duration
}

// Rerank sorts results by embedding similarity to the query. Any embed
// failure degrades to the original order.
func (r *EmbedReranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	qvec, err := r.engine.Embed(timeoutCtx, r.model, query)
	if err != nil {
		slog.Debug("reranker: query embed failed, keeping original order", "error", err)
		return results, nil
	}
	qnorm := norm(qvec)
	if qnorm == 0 {
		return results, nil
	}

	scores := make([]float32, len(results))
	g, gCtx := errgroup.WithContext(timeoutCtx)
	g.SetLimit(4)
	for i := range results {
		i := i
		g.Go(func() error {
			text := results[i].Title
			if results[i].Snippet != "" {
				text += "\n" + results[i].Snippet
			}
			vec, err := r.engine.Embed(gCtx, r.model, text)
			if err != nil {
				return fmt.Errorf("embedding result %d: %w", i, err)
			}
			scores[i] = cosine(qvec, vec, qnorm)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("reranker: result embed failed, keeping original order", "error", err)
		return results, nil
	}

	ranked := make([]Result, len(results))
	copy(ranked, results)
	for i := range ranked {
		ranked[i].Score = scores[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// NoOpReranker passes results through unchanged. Used when reranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, results []Result) ([]Result, error) {
	return results, nil
}
