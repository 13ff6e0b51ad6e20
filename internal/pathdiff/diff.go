// Package pathdiff computes and applies structured deltas between two
// snapshots of a learning path. A Diff is a pure value: deriving one never
// mutates its inputs, and applying one produces a new state rather than
// editing the base in place. Edges whose endpoints are missing from the
// node set are passed through untouched; referential integrity belongs to
// the caller.
package pathdiff

import (
	"time"

	"github.com/pathlight/pathlight/internal/pathstate"
)

// ValueChange records a string field transition. A nil *ValueChange means
// the field did not change, which keeps "unchanged" distinguishable from
// "changed to empty".
type ValueChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StatusChange records a path status transition.
type StatusChange struct {
	From pathstate.Status `json:"from"`
	To   pathstate.Status `json:"to"`
}

// VisibilityChange records a path visibility transition.
type VisibilityChange struct {
	From pathstate.Visibility `json:"from"`
	To   pathstate.Visibility `json:"to"`
}

// BoolChange records a boolean field transition.
type BoolChange struct {
	From bool `json:"from"`
	To   bool `json:"to"`
}

// TimeChange records an optional-timestamp transition. Either side may be
// nil: a node can gain, lose, or change its completion time.
type TimeChange struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// NodeChanges holds the per-field changes of one modified node. The
// comparison set is fixed: title, completion flag, completion time.
// Order moves are tracked separately in NodeDiff.Reordered.
type NodeChanges struct {
	Title       *ValueChange `json:"title,omitempty"`
	IsCompleted *BoolChange  `json:"is_completed,omitempty"`
	CompletedAt *TimeChange  `json:"completed_at,omitempty"`
}

func (c NodeChanges) empty() bool {
	return c.Title == nil && c.IsCompleted == nil && c.CompletedAt == nil
}

// NodeModification pairs a node id with its field changes.
type NodeModification struct {
	ID      string      `json:"id"`
	Changes NodeChanges `json:"changes"`
}

// OrderChange records a node's display-order move.
type OrderChange struct {
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// NodeDiff describes how the node set changed. Modified and Reordered are
// independent categories: a node can appear in both.
type NodeDiff struct {
	Added      []pathstate.Node   `json:"added"`
	Removed    []pathstate.Node   `json:"removed"`
	Modified   []NodeModification `json:"modified"`
	Reordered  []OrderChange      `json:"reordered"`
	HasChanges bool               `json:"has_changes"`
}

// EdgeDiff describes how the edge set changed. Edges are identified by
// their (from, to) pair, so duplicates within one state collapse.
type EdgeDiff struct {
	Added      []pathstate.Edge `json:"added"`
	Removed    []pathstate.Edge `json:"removed"`
	HasChanges bool             `json:"has_changes"`
}

// SetDiff describes how an unordered string set changed.
type SetDiff struct {
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	HasChanges bool     `json:"has_changes"`
}

// Diff is the structured delta between two PathStates. Scalar changes are
// nil when the field is unchanged; the collection sub-diffs are always
// present (possibly empty) so consumers never nil-check them.
type Diff struct {
	Title       *ValueChange      `json:"title,omitempty"`
	Description *ValueChange      `json:"description,omitempty"`
	Status      *StatusChange     `json:"status,omitempty"`
	Visibility  *VisibilityChange `json:"visibility,omitempty"`
	Nodes       NodeDiff          `json:"nodes"`
	Edges       EdgeDiff          `json:"edges"`
	Skills      SetDiff           `json:"skills"`
	Careers     SetDiff           `json:"careers"`
}

// HasChanges reports whether the diff records any change at all.
func (d Diff) HasChanges() bool {
	return d.Title != nil || d.Description != nil || d.Status != nil || d.Visibility != nil ||
		d.Nodes.HasChanges || d.Edges.HasChanges || d.Skills.HasChanges || d.Careers.HasChanges
}

// Compute derives the delta from oldState to newState. Neither input is
// mutated. Nodes are matched by id (first occurrence wins if an id is
// duplicated within a state), edges by (from, to) pair, and tag sets by
// set difference with duplicates collapsed.
func Compute(oldState, newState pathstate.PathState) Diff {
	d := Diff{
		Title:       stringChange(oldState.Title, newState.Title),
		Description: stringChange(oldState.Description, newState.Description),
		Nodes:       diffNodes(oldState.Nodes, newState.Nodes),
		Edges:       diffEdges(oldState.Edges, newState.Edges),
		Skills:      diffSet(oldState.InferredSkills, newState.InferredSkills),
		Careers:     diffSet(oldState.InferredCareers, newState.InferredCareers),
	}
	if oldState.Status != newState.Status {
		d.Status = &StatusChange{From: oldState.Status, To: newState.Status}
	}
	if oldState.Visibility != newState.Visibility {
		d.Visibility = &VisibilityChange{From: oldState.Visibility, To: newState.Visibility}
	}
	return d
}

func stringChange(from, to string) *ValueChange {
	if from == to {
		return nil
	}
	return &ValueChange{From: from, To: to}
}

// nodeIndex builds an id lookup preserving first occurrence on duplicates.
func nodeIndex(nodes []pathstate.Node) map[string]pathstate.Node {
	idx := make(map[string]pathstate.Node, len(nodes))
	for _, n := range nodes {
		if _, ok := idx[n.ID]; !ok {
			idx[n.ID] = n
		}
	}
	return idx
}

func diffNodes(oldNodes, newNodes []pathstate.Node) NodeDiff {
	oldIdx := nodeIndex(oldNodes)
	newIdx := nodeIndex(newNodes)

	nd := NodeDiff{
		Added:     []pathstate.Node{},
		Removed:   []pathstate.Node{},
		Modified:  []NodeModification{},
		Reordered: []OrderChange{},
	}

	seen := make(map[string]struct{}, len(newNodes))
	for _, n := range newNodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}

		prev, exists := oldIdx[n.ID]
		if !exists {
			nd.Added = append(nd.Added, n)
			continue
		}
		if changes := compareNode(prev, n); !changes.empty() {
			nd.Modified = append(nd.Modified, NodeModification{ID: n.ID, Changes: changes})
		}
		if prev.Order != n.Order {
			nd.Reordered = append(nd.Reordered, OrderChange{ID: n.ID, From: prev.Order, To: n.Order})
		}
	}

	seen = make(map[string]struct{}, len(oldNodes))
	for _, n := range oldNodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		if _, exists := newIdx[n.ID]; !exists {
			nd.Removed = append(nd.Removed, n)
		}
	}

	nd.HasChanges = len(nd.Added) > 0 || len(nd.Removed) > 0 || len(nd.Modified) > 0 || len(nd.Reordered) > 0
	return nd
}

// compareNode checks the fixed field set: title, isCompleted, completedAt.
func compareNode(prev, next pathstate.Node) NodeChanges {
	var c NodeChanges
	if prev.Title != next.Title {
		c.Title = &ValueChange{From: prev.Title, To: next.Title}
	}
	if prev.IsCompleted != next.IsCompleted {
		c.IsCompleted = &BoolChange{From: prev.IsCompleted, To: next.IsCompleted}
	}
	if !timeEqual(prev.CompletedAt, next.CompletedAt) {
		c.CompletedAt = &TimeChange{From: copyTime(prev.CompletedAt), To: copyTime(next.CompletedAt)}
	}
	return c
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func diffEdges(oldEdges, newEdges []pathstate.Edge) EdgeDiff {
	oldSet := edgeSet(oldEdges)
	newSet := edgeSet(newEdges)

	ed := EdgeDiff{Added: []pathstate.Edge{}, Removed: []pathstate.Edge{}}

	seen := make(map[pathstate.Edge]struct{}, len(newEdges))
	for _, e := range newEdges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if _, exists := oldSet[e]; !exists {
			ed.Added = append(ed.Added, e)
		}
	}

	seen = make(map[pathstate.Edge]struct{}, len(oldEdges))
	for _, e := range oldEdges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if _, exists := newSet[e]; !exists {
			ed.Removed = append(ed.Removed, e)
		}
	}

	ed.HasChanges = len(ed.Added) > 0 || len(ed.Removed) > 0
	return ed
}

func edgeSet(edges []pathstate.Edge) map[pathstate.Edge]struct{} {
	set := make(map[pathstate.Edge]struct{}, len(edges))
	for _, e := range edges {
		set[e] = struct{}{}
	}
	return set
}

func diffSet(oldTags, newTags []string) SetDiff {
	oldSet := stringSet(oldTags)
	newSet := stringSet(newTags)

	sd := SetDiff{Added: []string{}, Removed: []string{}}

	seen := make(map[string]struct{}, len(newTags))
	for _, tag := range newTags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		if _, exists := oldSet[tag]; !exists {
			sd.Added = append(sd.Added, tag)
		}
	}

	seen = make(map[string]struct{}, len(oldTags))
	for _, tag := range oldTags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		if _, exists := newSet[tag]; !exists {
			sd.Removed = append(sd.Removed, tag)
		}
	}

	sd.HasChanges = len(sd.Added) > 0 || len(sd.Removed) > 0
	return sd
}

func stringSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}
