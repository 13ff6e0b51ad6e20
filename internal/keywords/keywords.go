// Package keywords classifies free text (profiles, resumes, job
// postings) into career keyword sets, cached by a hash of the text.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/pathlight/pathlight/internal/cache"
	"github.com/pathlight/pathlight/internal/engine"
)

const (
	extractTimeout = 30 * time.Second

	// maxTextBytes clamps pathological inputs before they reach the
	// prompt; a resume or posting fits well below this.
	maxTextBytes = 32 * 1024
)

// Chatter is the slice of engine.Engine this package needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Keywords is the classified vocabulary of a piece of text.
type Keywords struct {
	Skills  []string `json:"skills"`
	Roles   []string `json:"roles"`
	Domains []string `json:"domains"`
}

// Classification is a Keywords set plus cache provenance.
type Classification struct {
	Keywords
	FromDatabase bool `json:"from_database"`
}

// Extractor classifies text through the engine, read-through cached.
type Extractor struct {
	client Chatter
	model  string
	cache  *cache.Keyed
}

// NewExtractor wires an Extractor to the shared entry store.
func NewExtractor(client Chatter, model string, store cache.EntryStore, ttl time.Duration, opts ...cache.Option) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		cache:  cache.NewKeyed(store, ttl, opts...),
	}
}

// Extract classifies text into skills, roles, and domains. Identical
// text (after case folding and whitespace collapse) is answered from the
// cache. Engine failures propagate uncached; an unparseable model
// response degrades to an empty keyword set.
func (e *Extractor) Extract(ctx context.Context, text string) (Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{}, fmt.Errorf("empty text")
	}
	if len(text) > maxTextBytes {
		text = strings.ToValidUTF8(text[:maxTextBytes], "")
	}

	key := fmt.Sprintf("keywords:%016x", xxhash.Sum64String(normalize(text)))
	res, err := e.cache.Fetch(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		kw, err := e.classify(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(kw)
	})
	if err != nil {
		return Classification{}, err
	}

	var kw Keywords
	if err := json.Unmarshal(res.Payload, &kw); err != nil {
		return Classification{}, fmt.Errorf("decoding cached keywords: %w", err)
	}
	return Classification{Keywords: kw, FromDatabase: res.FromDatabase}, nil
}

const classifyPrompt = `You are a career keyword extraction engine. Classify the text into three keyword sets:
- "skills": concrete skills, tools, and technologies mentioned or clearly implied
- "roles": job titles the text describes or suits
- "domains": broader career domains the text belongs to

Your output must be ONLY a single valid JSON object conforming to the provided schema. Do not include any other text, prose, or markdown.`

func (e *Extractor) classify(ctx context.Context, text string) (Keywords, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	raw, err := e.client.Chat(ctx, e.model, []engine.Message{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: text},
	}, keywordSchema())
	if err != nil {
		return Keywords{}, fmt.Errorf("classifying text: %w", err)
	}

	var kw Keywords
	if err := json.Unmarshal([]byte(extractObject(raw)), &kw); err != nil {
		// Classification is enrichment: a model that answered in prose
		// yields an empty set rather than a failure.
		slog.Warn("keyword parse failed, returning empty set", "error", err)
		return Keywords{Skills: []string{}, Roles: []string{}, Domains: []string{}}, nil
	}
	kw.Skills = dedupe(kw.Skills)
	kw.Roles = dedupe(kw.Roles)
	kw.Domains = dedupe(kw.Domains)
	return kw, nil
}

func keywordSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"skills":  {Type: "array", Description: "Skills, tools, technologies", Items: &engine.SchemaProperty{Type: "string"}},
			"roles":   {Type: "array", Description: "Matching job titles", Items: &engine.SchemaProperty{Type: "string"}},
			"domains": {Type: "array", Description: "Broader career domains", Items: &engine.SchemaProperty{Type: "string"}},
		},
		Required: []string{"skills", "roles", "domains"},
	}
}

// normalize folds case and collapses whitespace for cache-key hashing.
func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// dedupe drops duplicate and blank entries, preserving first-seen order.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// extractObject trims markdown fences and surrounding prose from a model
// response, returning the outermost JSON object.
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}
