// Package trends generates and caches the trending career domains
// report. The report is a singleton: one cached row, shared by every
// caller, regenerated through the engine when it expires.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pathlight/pathlight/internal/cache"
	"github.com/pathlight/pathlight/internal/engine"
)

const (
	cacheKind = "trending_domains"

	// domainCount is how many domains one report asks the model for.
	domainCount = 8

	generateTimeout = 90 * time.Second
)

// Chatter is the slice of engine.Engine this package needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Domain is one trending career area in the report.
type Domain struct {
	Name         string   `json:"name"`
	Growth       string   `json:"growth"`
	Summary      string   `json:"summary"`
	ExampleRoles []string `json:"example_roles"`
}

// Snapshot is the cached report body.
type Snapshot struct {
	Domains     []Domain  `json:"domains"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report is a Snapshot plus cache provenance: where it came from and how
// often the cached row has been used.
type Report struct {
	Snapshot
	FromDatabase bool  `json:"from_database"`
	UsageCount   int64 `json:"usage_count"`
}

// Service serves the trending-domains report.
type Service struct {
	client Chatter
	model  string
	cache  *cache.Singleton[Snapshot]
}

// NewService wires the report generator to the shared entry store.
func NewService(client Chatter, model string, store cache.EntryStore, ttl time.Duration, opts ...cache.Option) *Service {
	return &Service{
		client: client,
		model:  model,
		cache:  cache.NewSingleton[Snapshot](store, cacheKind, ttl, opts...),
	}
}

// Trending returns the current report, regenerating it through the
// engine when the cached one is absent or expired. Generation failures
// propagate and leave the cache untouched.
func (s *Service) Trending(ctx context.Context) (Report, error) {
	c, err := s.cache.Fetch(ctx, s.generate)
	if err != nil {
		return Report{}, err
	}
	return Report{Snapshot: c.Value, FromDatabase: c.FromDatabase, UsageCount: c.UsageCount}, nil
}

const trendsPrompt = `You are a career research assistant. List the %d career domains currently seeing the strongest growth in demand, across technology and adjacent fields.

For each domain give:
- "name": the domain name
- "growth": a one-word growth label (rapid, steady, emerging)
- "summary": one sentence on what is driving the trend
- "example_roles": two to four typical job titles

Your output must be ONLY a single valid JSON object conforming to the provided schema. Do not include any other text, prose, or markdown.`

func (s *Service) generate(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	raw, err := s.client.Chat(ctx, s.model, []engine.Message{
		{Role: "system", Content: fmt.Sprintf(trendsPrompt, domainCount)},
		{Role: "user", Content: "Generate the trending career domains report."},
	}, trendsSchema())
	if err != nil {
		return Snapshot{}, fmt.Errorf("generating trending domains: %w", err)
	}

	var out struct {
		Domains []Domain `json:"domains"`
	}
	if err := json.Unmarshal([]byte(extractObject(raw)), &out); err != nil {
		return Snapshot{}, fmt.Errorf("parsing trending domains: %w", err)
	}
	if len(out.Domains) == 0 {
		return Snapshot{}, fmt.Errorf("engine returned no domains")
	}
	return Snapshot{Domains: out.Domains, GeneratedAt: time.Now().UTC()}, nil
}

func trendsSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"domains": {
				Type:        "array",
				Description: "Trending career domains",
				Items: &engine.SchemaProperty{
					Type: "object",
					Properties: map[string]engine.SchemaProperty{
						"name":          {Type: "string", Description: "Domain name"},
						"growth":        {Type: "string", Description: "One-word growth label"},
						"summary":       {Type: "string", Description: "What is driving the trend"},
						"example_roles": {Type: "array", Description: "Typical job titles", Items: &engine.SchemaProperty{Type: "string"}},
					},
					Required: []string{"name", "growth", "summary", "example_roles"},
				},
			},
		},
		Required: []string{"domains"},
	}
}

// extractObject trims markdown fences and surrounding prose from a model
// response, returning the outermost JSON object. Input without braces is
// returned unchanged so the caller's unmarshal reports the real error.
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
