package websearch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pathlight/pathlight/internal/engine"
)

// --- mock engine ---

type mockEngine struct {
	chatFn  func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error)
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEngine) Chat(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, model, msgs, schema)
	}
	return `{"score": 0.5}`, nil
}

func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, model, text)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *mockEngine) IsRunning(ctx context.Context) bool               { return true }
func (m *mockEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockEngine) HasModel(ctx context.Context, name string) bool   { return true }
func (m *mockEngine) PullModel(ctx context.Context, name string, fn func(engine.PullProgress)) error {
	return nil
}

// --- helpers ---

func makeResults(n int, score float32) []Result {
	results := make([]Result, n)
	for i := range results {
		results[i] = Result{
			Title:   fmt.Sprintf("result %d", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Snippet: fmt.Sprintf("snippet %d", i),
			Score:   score,
		}
	}
	return results
}

func newLLMReranker(eng engine.Engine, threshold float64, timeout time.Duration) *LLMReranker {
	return &LLMReranker{
		engine:    eng,
		model:     "llama3.2",
		timeout:   timeout,
		threshold: threshold,
	}
}

// --- LLM reranker ---

func TestLLMReranker_ReordersResults(t *testing.T) {
	scores := []float64{0.9, 0.3, 0.7}
	var callIdx atomic.Int32
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			i := int(callIdx.Add(1)) - 1
			return fmt.Sprintf(`{"score": %g}`, scores[i]), nil
		},
	}

	results := makeResults(3, 0.5)
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ranked) != 3 {
		t.Fatalf("got %d results, want 3", len(ranked))
	}
	wantOrder := []float32{0.9, 0.7, 0.3}
	for i, res := range ranked {
		if res.Score != wantOrder[i] {
			t.Errorf("ranked[%d].Score = %g, want %g", i, res.Score, wantOrder[i])
		}
	}
}

func TestLLMReranker_DropsLowScore(t *testing.T) {
	// One result scores 0.1 (below threshold 0.3), two score above.
	scores := []float64{0.8, 0.1, 0.7}
	var callIdx atomic.Int32
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			i := int(callIdx.Add(1)) - 1
			return fmt.Sprintf(`{"score": %g}`, scores[i]), nil
		},
	}

	results := makeResults(3, 0.5)
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2 (low-score result should be dropped)", len(ranked))
	}
	for _, res := range ranked {
		if float64(res.Score) < 0.3 {
			t.Errorf("result with score %g below threshold was not dropped", res.Score)
		}
	}
}

func TestLLMReranker_AllBelowThreshold(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"score": 0.1}`, nil
		},
	}

	results := makeResults(3, 0.9)
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("got %d results, want 0 when everything scores below threshold", len(ranked))
	}
}

func TestLLMReranker_TimeoutKeepsOriginalOrder(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	results := makeResults(3, 0.8)
	r := newLLMReranker(eng, 0.3, 200*time.Millisecond)

	start := time.Now()
	ranked, err := r.Rerank(context.Background(), "query", results)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout must degrade, not error: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("Rerank took %v, want well under 1s", elapsed)
	}
	if len(ranked) != 3 {
		t.Fatalf("got %d results, want original 3", len(ranked))
	}
	for i, res := range ranked {
		if res.Title != results[i].Title {
			t.Errorf("ranked[%d] = %q, want original order preserved", i, res.Title)
		}
	}
}

func TestLLMReranker_MarkdownCodeFence(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "```json\n{\"score\": 0.8}\n```", nil
		},
	}

	results := makeResults(1, 0.5)
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
	if ranked[0].Score != 0.8 {
		t.Errorf("score = %g, want 0.8 (parsed from markdown-fenced JSON)", ranked[0].Score)
	}
}

func TestLLMReranker_ConversationalFiller(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `The relevance score is: {"score": 0.6}`, nil
		},
	}

	results := makeResults(1, 0.5)
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
	if ranked[0].Score != 0.6 {
		t.Errorf("score = %g, want 0.6 (extracted despite filler)", ranked[0].Score)
	}
}

func TestLLMReranker_MalformedJSON(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "completely unparseable garbage", nil
		},
	}

	originalScore := float32(0.9)
	results := []Result{{Title: "r", URL: "https://r", Score: originalScore}}
	r := newLLMReranker(eng, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1 (result should not be dropped on parse failure)", len(ranked))
	}
	if ranked[0].Score != originalScore {
		t.Errorf("score = %g, want original %g (should not be penalised)", ranked[0].Score, originalScore)
	}
}

func TestLLMReranker_EmptyResults(t *testing.T) {
	r := newLLMReranker(&mockEngine{}, 0.3, 5*time.Second)
	ranked, err := r.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("got %d results, want 0 for empty input", len(ranked))
	}
}

// --- embed reranker ---

// embedByTitle returns vectors keyed by the leading text line.
func embedByTitle(vectors map[string][]float32, queryVec []float32) func(ctx context.Context, model string, text string) ([]float32, error) {
	return func(ctx context.Context, model string, text string) ([]float32, error) {
		for title, vec := range vectors {
			if len(text) >= len(title) && text[:len(title)] == title {
				return vec, nil
			}
		}
		return queryVec, nil
	}
}

func TestEmbedReranker_OrdersByCosine(t *testing.T) {
	// Query points along (1,0): result 1 is parallel, result 2 diagonal,
	// result 0 orthogonal.
	vectors := map[string][]float32{
		"result 0": {0, 1},
		"result 1": {1, 0},
		"result 2": {0.7, 0.7},
	}
	eng := &mockEngine{embedFn: embedByTitle(vectors, []float32{1, 0})}

	results := makeResults(3, 0)
	r := &EmbedReranker{engine: eng, model: "nomic-embed-text", timeout: 5 * time.Second}
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ranked) != 3 {
		t.Fatalf("got %d results, want 3 (embed rerank never filters)", len(ranked))
	}
	wantOrder := []string{"result 1", "result 2", "result 0"}
	for i, want := range wantOrder {
		if ranked[i].Title != want {
			t.Errorf("ranked[%d] = %q, want %q", i, ranked[i].Title, want)
		}
	}
	if ranked[0].Score < 0.99 {
		t.Errorf("top score = %g, want ~1.0", ranked[0].Score)
	}
}

func TestEmbedReranker_EmbedFailureKeepsOrder(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(ctx context.Context, model string, text string) ([]float32, error) {
			return nil, fmt.Errorf("engine down")
		},
	}

	results := makeResults(3, 0.4)
	r := &EmbedReranker{engine: eng, model: "nomic-embed-text", timeout: time.Second}
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("embed failure must degrade, not error: %v", err)
	}
	for i, res := range ranked {
		if res.Title != results[i].Title {
			t.Errorf("ranked[%d] = %q, want original order", i, res.Title)
		}
	}
}

// --- constructor ---

func TestNewReranker_Modes(t *testing.T) {
	eng := &mockEngine{}

	if _, ok := NewReranker(eng, RerankLLM, "llama3.2", "nomic-embed-text", time.Second, 0.3).(*LLMReranker); !ok {
		t.Error("llm mode did not return *LLMReranker")
	}
	if _, ok := NewReranker(eng, RerankEmbed, "llama3.2", "nomic-embed-text", time.Second, 0).(*EmbedReranker); !ok {
		t.Error("embed mode did not return *EmbedReranker")
	}
	if _, ok := NewReranker(eng, RerankOff, "llama3.2", "nomic-embed-text", time.Second, 0).(*NoOpReranker); !ok {
		t.Error("off mode did not return *NoOpReranker")
	}
	if _, ok := NewReranker(nil, RerankLLM, "llama3.2", "nomic-embed-text", time.Second, 0.3).(*NoOpReranker); !ok {
		t.Error("nil engine did not fall back to *NoOpReranker")
	}
}

func TestNoOpReranker(t *testing.T) {
	results := makeResults(3, 0.5)
	results[0].Score = 0.3
	results[1].Score = 0.9
	results[2].Score = 0.1

	r := &NoOpReranker{}
	ranked, err := r.Rerank(context.Background(), "query", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("got %d results, want 3", len(ranked))
	}
	for i, res := range ranked {
		if res.Score != results[i].Score {
			t.Errorf("ranked[%d].Score = %g, want %g (order must be unchanged)", i, res.Score, results[i].Score)
		}
	}
}
