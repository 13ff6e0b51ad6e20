package paths

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/pathlight/pathlight/internal/pathstate"
	"github.com/pathlight/pathlight/internal/storage"
)

func newTestService(t *testing.T, client Chatter) *Service {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, client, "llama3.2")
}

func activeState(title string) pathstate.PathState {
	return pathstate.PathState{
		Title:      title,
		Status:     pathstate.StatusActive,
		Visibility: pathstate.VisibilityPrivate,
		Nodes: []pathstate.Node{
			{ID: "n1", Title: "Basics", Order: 0},
			{ID: "n2", Title: "Practice", Order: 1},
		},
		Edges: []pathstate.Edge{{From: "n1", To: "n2"}},
	}
}

func TestCreateAssignsDefaults(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, pathstate.PathState{
		Title: "Data Analyst",
		Nodes: []pathstate.Node{{Title: "Spreadsheets"}, {Title: "SQL", Order: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Error("record id not assigned")
	}
	if rec.State.Status != pathstate.StatusDraft {
		t.Errorf("status = %q, want draft", rec.State.Status)
	}
	if rec.State.Visibility != pathstate.VisibilityPrivate {
		t.Errorf("visibility = %q, want private", rec.State.Visibility)
	}
	for i, n := range rec.State.Nodes {
		if n.ID == "" {
			t.Errorf("node %d: id not assigned", i)
		}
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if !reflect.DeepEqual(got.State, rec.State) {
		t.Errorf("stored state differs:\n got %+v\nwant %+v", got.State, rec.State)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Create(context.Background(), pathstate.PathState{}); err == nil {
		t.Fatal("expected error for state without title")
	}
}

func TestUpdateRecordsRevision(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, activeState("Go Backend Developer"))
	if err != nil {
		t.Fatal(err)
	}

	next := rec.State.Clone()
	next.Title = "Go Platform Engineer"
	next.Nodes[0].IsCompleted = true

	res, err := svc.Update(ctx, rec.ID, next)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !res.HasChanges {
		t.Fatal("HasChanges = false after a real change")
	}
	if res.RevisionID == 0 {
		t.Error("revision id not set")
	}
	if res.Path.State.Title != "Go Platform Engineer" {
		t.Errorf("title = %q after update", res.Path.State.Title)
	}
	if len(res.Summary) == 0 {
		t.Error("summary empty")
	}

	revs, err := svc.Revisions(ctx, rec.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 {
		t.Fatalf("revisions = %d, want 1", len(revs))
	}
	if revs[0].Diff.Title == nil {
		t.Error("revision diff missing title change")
	}
	if revs[0].Summary == "" {
		t.Error("revision summary empty")
	}
}

func TestUpdateNoChange(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, activeState("Go Backend Developer"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Update(ctx, rec.ID, rec.State)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.HasChanges {
		t.Error("HasChanges = true for identical state")
	}
	if res.RevisionID != 0 {
		t.Errorf("revision id = %d, want 0", res.RevisionID)
	}
	if want := []string{"No changes."}; !reflect.DeepEqual(res.Summary, want) {
		t.Errorf("summary = %q, want %q", res.Summary, want)
	}

	revs, err := svc.Revisions(ctx, rec.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 0 {
		t.Errorf("no-op update wrote %d revisions", len(revs))
	}
}

func TestUpdateValidatesNext(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, activeState("Go Backend Developer"))
	if err != nil {
		t.Fatal(err)
	}

	bad := rec.State.Clone()
	bad.Title = ""
	if _, err := svc.Update(ctx, rec.ID, bad); err == nil {
		t.Fatal("expected error for invalid next state")
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State.Title != "Go Backend Developer" {
		t.Errorf("stored title = %q after rejected update", got.State.Title)
	}
}

func TestUpdateMissingPath(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Update(context.Background(), "ghost", activeState("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, activeState("Go Backend Developer"))
	if err != nil {
		t.Fatal(err)
	}

	next := rec.State.Clone()
	next.Status = pathstate.StatusCompleted

	cs, err := svc.Preview(ctx, rec.ID, next)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !cs.HasChanges || cs.Diff.Status == nil {
		t.Errorf("change set = %+v, want a status change", cs)
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State.Status != pathstate.StatusActive {
		t.Errorf("status = %q, preview must not persist", got.State.Status)
	}
	revs, err := svc.Revisions(ctx, rec.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 0 {
		t.Errorf("preview wrote %d revisions", len(revs))
	}
}

func TestRevisionsMissingPath(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Revisions(context.Background(), "ghost", 10); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, activeState("First"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, activeState("Second")); err != nil {
		t.Fatal(err)
	}

	recs, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("list = %d paths, want 2", len(recs))
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	recs, err = svc.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("list = %d paths after delete, want 1", len(recs))
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
