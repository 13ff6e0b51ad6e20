// Package paths manages learning paths: creation, diff-audited updates,
// change previews, and LLM-backed generation from a career goal.
//
// Every persisted update runs through the diff engine first. The diff is
// stored alongside the new state as an audit revision, so a path's history
// can always answer "what changed and when" without replaying documents.
package paths

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pathlight/pathlight/internal/pathdiff"
	"github.com/pathlight/pathlight/internal/pathstate"
	"github.com/pathlight/pathlight/internal/storage"
)

// ErrInvalidState marks state validation failures so transport layers can
// map them to client errors instead of server errors.
var ErrInvalidState = errors.New("invalid path state")

// Service coordinates path persistence with the diff engine.
type Service struct {
	store  *storage.Store
	client Chatter
	model  string
}

// NewService returns a path service backed by store. client and model are
// only needed for Generate; pass a nil client to run without an engine.
func NewService(store *storage.Store, client Chatter, model string) *Service {
	return &Service{store: store, client: client, model: model}
}

// ChangeSet is a computed diff together with its human-readable rendering.
type ChangeSet struct {
	Diff       pathdiff.Diff `json:"diff"`
	Summary    []string      `json:"summary"`
	HasChanges bool          `json:"has_changes"`
}

// UpdateResult is the outcome of a persisted update: the stored record,
// what changed, and the id of the audit revision. RevisionID is zero when
// the submitted state matched the stored one and no revision was written.
type UpdateResult struct {
	Path storage.PathRecord `json:"path"`
	ChangeSet
	RevisionID int64 `json:"revision_id,omitempty"`
}

// Create validates and stores a new path. Empty status and visibility
// default to draft/private, and nodes without ids get generated ones.
func (s *Service) Create(ctx context.Context, state pathstate.PathState) (storage.PathRecord, error) {
	st := state.Clone()
	if st.Status == "" {
		st.Status = pathstate.StatusDraft
	}
	if st.Visibility == "" {
		st.Visibility = pathstate.VisibilityPrivate
	}
	for i := range st.Nodes {
		if st.Nodes[i].ID == "" {
			st.Nodes[i].ID = uuid.New().String()
		}
	}
	if err := st.Validate(); err != nil {
		return storage.PathRecord{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	now := time.Now().UTC()
	rec := storage.PathRecord{ID: uuid.New().String(), State: st, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreatePath(ctx, rec); err != nil {
		return storage.PathRecord{}, err
	}
	return rec, nil
}

// Get returns a stored path by id.
func (s *Service) Get(ctx context.Context, id string) (storage.PathRecord, error) {
	return s.store.GetPath(ctx, id)
}

// List returns stored paths, most recently updated first.
func (s *Service) List(ctx context.Context, limit int) ([]storage.PathRecord, error) {
	return s.store.ListPaths(ctx, limit)
}

// Delete removes a path and its revision history.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeletePath(ctx, id)
}

// Update replaces a path's state with next, recording the diff against the
// stored state as an audit revision. A next state identical to the stored
// one is a no-op: nothing is written and no revision appears.
func (s *Service) Update(ctx context.Context, id string, next pathstate.PathState) (UpdateResult, error) {
	cur, err := s.store.GetPath(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	st := next.Clone()
	if err := st.Validate(); err != nil {
		return UpdateResult{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	d := pathdiff.Compute(cur.State, st)
	if !d.HasChanges() {
		return UpdateResult{Path: cur, ChangeSet: newChangeSet(d)}, nil
	}

	revID, err := s.store.UpdatePathWithRevision(ctx, id, st, storage.Revision{
		PathID:  id,
		Diff:    d,
		Summary: pathdiff.SummaryText(d),
	})
	if err != nil {
		return UpdateResult{}, err
	}

	rec, err := s.store.GetPath(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Path: rec, ChangeSet: newChangeSet(d), RevisionID: revID}, nil
}

// Preview computes what Update would change without persisting anything.
func (s *Service) Preview(ctx context.Context, id string, next pathstate.PathState) (ChangeSet, error) {
	cur, err := s.store.GetPath(ctx, id)
	if err != nil {
		return ChangeSet{}, err
	}
	st := next.Clone()
	if err := st.Validate(); err != nil {
		return ChangeSet{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return newChangeSet(pathdiff.Compute(cur.State, st)), nil
}

// Revisions returns a path's audit history, newest first. The path must
// exist; a path with no recorded changes yields an empty history.
func (s *Service) Revisions(ctx context.Context, id string, limit int) ([]storage.Revision, error) {
	if _, err := s.store.GetPath(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, id, limit)
}

func newChangeSet(d pathdiff.Diff) ChangeSet {
	return ChangeSet{
		Diff:       d,
		Summary:    slices.Collect(pathdiff.Summarize(d)),
		HasChanges: d.HasChanges(),
	}
}
