package paths

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pathlight/pathlight/internal/engine"
	"github.com/pathlight/pathlight/internal/pathstate"
	"github.com/pathlight/pathlight/internal/storage"
)

// Chatter is the slice of the inference engine the generator needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, format *engine.Schema) (string, error)
}

const generateTimeout = 2 * time.Minute

const generatePrompt = `You are a career mentor designing step-by-step learning paths.
Given a career goal, produce an ordered list of concrete learning steps that take a
motivated beginner to job readiness. Each step has a short title and may list the
0-based indexes of earlier steps it depends on. Also infer the skills the path
teaches and the job titles it prepares for.

Keep it practical: 5 to 12 steps, each small enough to finish in a week or two.
Respond with JSON only.`

// generatedPath is the wire shape the model fills in. Steps reference their
// prerequisites by index; ids are assigned after parsing.
type generatedPath struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Steps       []generatedStep `json:"steps"`
	Skills      []string        `json:"skills"`
	Careers     []string        `json:"careers"`
}

type generatedStep struct {
	Title     string `json:"title"`
	DependsOn []int  `json:"depends_on"`
}

// Generate asks the model for a learning path toward goal and stores it as
// a new draft. The model's step dependencies become edges; references to
// missing or out-of-range steps are dropped rather than rejected.
func (s *Service) Generate(ctx context.Context, goal string) (storage.PathRecord, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return storage.PathRecord{}, errors.New("goal is empty")
	}
	if s.client == nil {
		return storage.PathRecord{}, errors.New("no inference engine configured")
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	messages := []engine.Message{
		{Role: "system", Content: generatePrompt},
		{Role: "user", Content: goal},
	}
	raw, err := s.client.Chat(ctx, s.model, messages, generateSchema())
	if err != nil {
		return storage.PathRecord{}, fmt.Errorf("generating path: %w", err)
	}

	var gp generatedPath
	if err := json.Unmarshal([]byte(extractObject(raw)), &gp); err != nil {
		return storage.PathRecord{}, fmt.Errorf("parsing generated path: %w", err)
	}

	st := gp.toState(goal)
	if len(st.Nodes) == 0 {
		return storage.PathRecord{}, errors.New("model returned no usable steps")
	}
	return s.Create(ctx, st)
}

// toState converts the model's answer into a draft path state. Steps with
// empty titles are dropped; dependency indexes pointing at dropped steps,
// out-of-range steps, or the step itself are skipped.
func (g generatedPath) toState(goal string) pathstate.PathState {
	title := strings.TrimSpace(g.Title)
	if title == "" {
		title = goal
	}
	st := pathstate.PathState{
		Title:           title,
		Description:     strings.TrimSpace(g.Description),
		Status:          pathstate.StatusDraft,
		Visibility:      pathstate.VisibilityPrivate,
		InferredSkills:  dedupe(g.Skills),
		InferredCareers: dedupe(g.Careers),
	}

	ids := make([]string, len(g.Steps))
	for i, step := range g.Steps {
		t := strings.TrimSpace(step.Title)
		if t == "" {
			continue
		}
		ids[i] = uuid.New().String()
		st.Nodes = append(st.Nodes, pathstate.Node{ID: ids[i], Title: t, Order: len(st.Nodes)})
	}

	seen := make(map[pathstate.Edge]struct{})
	for i, step := range g.Steps {
		if ids[i] == "" {
			continue
		}
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= len(g.Steps) || dep == i || ids[dep] == "" {
				continue
			}
			e := pathstate.Edge{From: ids[dep], To: ids[i]}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			st.Edges = append(st.Edges, e)
		}
	}
	st.Normalize()
	return st
}

func generateSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"title":       {Type: "string", Description: "name of the learning path"},
			"description": {Type: "string", Description: "one or two sentences on where the path leads"},
			"steps": {
				Type: "array",
				Items: &engine.SchemaProperty{
					Type: "object",
					Properties: map[string]engine.SchemaProperty{
						"title":      {Type: "string", Description: "short name of the learning step"},
						"depends_on": {Type: "array", Description: "0-based indexes of prerequisite steps", Items: &engine.SchemaProperty{Type: "integer"}},
					},
					Required: []string{"title"},
				},
			},
			"skills":  {Type: "array", Items: &engine.SchemaProperty{Type: "string"}},
			"careers": {Type: "array", Items: &engine.SchemaProperty{Type: "string"}},
		},
		Required: []string{"title", "steps"},
	}
}

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
