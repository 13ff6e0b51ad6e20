package paths

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pathlight/pathlight/internal/engine"
	"github.com/pathlight/pathlight/internal/pathstate"
)

type mockChatter struct {
	response string
	err      error
	calls    atomic.Int64
	model    string
	messages []engine.Message
	schema   *engine.Schema
}

func (m *mockChatter) Chat(_ context.Context, model string, messages []engine.Message, format *engine.Schema) (string, error) {
	m.calls.Add(1)
	m.model = model
	m.messages = messages
	m.schema = format
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

const generatedJSON = `{
	"title": "Become a Site Reliability Engineer",
	"description": "From Linux basics to production on-call.",
	"steps": [
		{"title": "Linux fundamentals"},
		{"title": "Networking and DNS", "depends_on": [0]},
		{"title": "Kubernetes operations", "depends_on": [0, 1]}
	],
	"skills": ["linux", "Linux", "kubernetes"],
	"careers": ["site reliability engineer"]
}`

func TestGenerateCreatesPath(t *testing.T) {
	mock := &mockChatter{response: generatedJSON}
	svc := newTestService(t, mock)
	ctx := context.Background()

	rec, err := svc.Generate(ctx, "become an SRE")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rec.State.Title != "Become a Site Reliability Engineer" {
		t.Errorf("title = %q", rec.State.Title)
	}
	if rec.State.Status != pathstate.StatusDraft || rec.State.Visibility != pathstate.VisibilityPrivate {
		t.Errorf("new path is %s/%s, want a private draft", rec.State.Status, rec.State.Visibility)
	}
	if len(rec.State.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(rec.State.Nodes))
	}
	for i, n := range rec.State.Nodes {
		if n.ID == "" {
			t.Errorf("node %d: no id", i)
		}
		if n.Order != i {
			t.Errorf("node %d: order = %d", i, n.Order)
		}
	}

	id := func(title string) string {
		for _, n := range rec.State.Nodes {
			if n.Title == title {
				return n.ID
			}
		}
		t.Fatalf("no node titled %q", title)
		return ""
	}
	linux := id("Linux fundamentals")
	network := id("Networking and DNS")
	k8s := id("Kubernetes operations")
	for _, e := range []pathstate.Edge{
		{From: linux, To: network},
		{From: linux, To: k8s},
		{From: network, To: k8s},
	} {
		if !rec.State.HasEdge(e.From, e.To) {
			t.Errorf("missing edge %s -> %s", e.From, e.To)
		}
	}
	if len(rec.State.Edges) != 3 {
		t.Errorf("edges = %d, want 3", len(rec.State.Edges))
	}

	if got, want := rec.State.InferredSkills, []string{"linux", "kubernetes"}; !reflect.DeepEqual(got, want) {
		t.Errorf("skills = %q, want %q", got, want)
	}

	if _, err := svc.Get(ctx, rec.ID); err != nil {
		t.Errorf("generated path not stored: %v", err)
	}

	if mock.model != "llama3.2" {
		t.Errorf("model = %q", mock.model)
	}
	if mock.schema == nil {
		t.Error("no response schema sent")
	}
	if len(mock.messages) != 2 || mock.messages[1].Content != "become an SRE" {
		t.Errorf("messages = %+v", mock.messages)
	}
}

func TestGenerateEmptyGoal(t *testing.T) {
	mock := &mockChatter{response: generatedJSON}
	svc := newTestService(t, mock)
	if _, err := svc.Generate(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty goal")
	}
	if n := mock.calls.Load(); n != 0 {
		t.Errorf("engine called %d times for an empty goal", n)
	}
}

func TestGenerateWithoutEngine(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Generate(context.Background(), "become an SRE"); err == nil {
		t.Fatal("expected error when no engine is configured")
	}
}

func TestGenerateEngineError(t *testing.T) {
	mock := &mockChatter{err: errors.New("model not loaded")}
	svc := newTestService(t, mock)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "become an SRE")
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v", err)
	}
	recs, listErr := svc.List(ctx, 0)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(recs) != 0 {
		t.Errorf("failed generation stored %d paths", len(recs))
	}
}

func TestGenerateMalformedResponse(t *testing.T) {
	svc := newTestService(t, &mockChatter{response: "I could not help with that."})
	if _, err := svc.Generate(context.Background(), "become an SRE"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGenerateNoSteps(t *testing.T) {
	svc := newTestService(t, &mockChatter{response: `{"title": "Empty", "steps": []}`})
	if _, err := svc.Generate(context.Background(), "become an SRE"); err == nil {
		t.Fatal("expected error for a path with no steps")
	}
}

func TestGenerateFencedResponse(t *testing.T) {
	fenced := "```json\n" + generatedJSON + "\n```"
	svc := newTestService(t, &mockChatter{response: fenced})

	rec, err := svc.Generate(context.Background(), "become an SRE")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(rec.State.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(rec.State.Nodes))
	}
}

func TestGenerateSkipsBadDependencies(t *testing.T) {
	resp := `{
		"title": "Messy",
		"steps": [
			{"title": "One", "depends_on": [0, -1, 99]},
			{"title": ""},
			{"title": "Two", "depends_on": [0, 0, 1]}
		]
	}`
	svc := newTestService(t, &mockChatter{response: resp})

	rec, err := svc.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(rec.State.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2 (step without a title dropped)", len(rec.State.Nodes))
	}
	// Self references, out-of-range indexes, duplicates, and references to
	// the dropped step are all skipped; only One -> Two survives.
	if len(rec.State.Edges) != 1 {
		t.Fatalf("edges = %+v, want exactly one", rec.State.Edges)
	}
	from, _ := rec.State.NodeByID(rec.State.Edges[0].From)
	to, _ := rec.State.NodeByID(rec.State.Edges[0].To)
	if from.Title != "One" || to.Title != "Two" {
		t.Errorf("edge = %q -> %q", from.Title, to.Title)
	}
}

func TestGenerateFallbackTitle(t *testing.T) {
	svc := newTestService(t, &mockChatter{response: `{"steps": [{"title": "Only step"}]}`})

	rec, err := svc.Generate(context.Background(), "learn bookkeeping")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rec.State.Title != "learn bookkeeping" {
		t.Errorf("title = %q, want the goal as fallback", rec.State.Title)
	}
}
