// Package pathstate defines the learning-path snapshot model shared by the
// diff engine, storage, API, and CLI. A PathState is a point-in-time value:
// scalar fields, an ordered node list, a prerequisite edge set, and the skill
// and career tags inferred for the path.
package pathstate

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a path.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Visibility controls who can see a path.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityUnlisted, VisibilityPublic:
		return true
	}
	return false
}

// Node is a single learning step. ID is the stable identity used for
// diffing; Order controls display position independently of the node's
// position in the Nodes slice.
type Node struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Order       int        `json:"order"`
}

// Edge is a prerequisite link between two nodes. The ordered (From, To)
// pair is the edge's identity; there are no parallel edges.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PathState is a snapshot of a learning path. Collections are always
// non-nil after Normalize; callers decoding a PathState from JSON or
// loading one from storage must call Normalize before handing it to the
// diff engine.
type PathState struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	Visibility      Visibility `json:"visibility"`
	Nodes           []Node     `json:"nodes"`
	Edges           []Edge     `json:"edges"`
	InferredSkills  []string   `json:"inferred_skills"`
	InferredCareers []string   `json:"inferred_careers"`
}

// Normalize replaces nil collections with empty ones so downstream code
// never needs nil checks. Called at every deserialization boundary.
func (s *PathState) Normalize() {
	if s.Nodes == nil {
		s.Nodes = []Node{}
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	if s.InferredSkills == nil {
		s.InferredSkills = []string{}
	}
	if s.InferredCareers == nil {
		s.InferredCareers = []string{}
	}
}

// Clone returns a deep copy sharing no mutable state with s.
func (s PathState) Clone() PathState {
	out := s
	out.Nodes = make([]Node, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.CompletedAt != nil {
			t := *n.CompletedAt
			n.CompletedAt = &t
		}
		out.Nodes[i] = n
	}
	out.Edges = append([]Edge(nil), s.Edges...)
	out.InferredSkills = append([]string(nil), s.InferredSkills...)
	out.InferredCareers = append([]string(nil), s.InferredCareers...)
	out.Normalize()
	return out
}

// NodeByID returns the node with the given id, if present.
func (s PathState) NodeByID(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasEdge reports whether the (from, to) edge exists.
func (s PathState) HasEdge(from, to string) bool {
	for _, e := range s.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Validate checks the invariants the API enforces on incoming states:
// a title, valid enum values, and uniquely identified, titled nodes.
// Edge endpoints are deliberately not checked against the node set; the
// diff engine passes dangling edges through and display layers ignore
// them.
func (s PathState) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	if !s.Visibility.Valid() {
		return fmt.Errorf("invalid visibility %q", s.Visibility)
	}
	seen := make(map[string]struct{}, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: id is required", i)
		}
		if n.Title == "" {
			return fmt.Errorf("node %q: title is required", n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for i, e := range s.Edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("edge %d: from and to are required", i)
		}
	}
	return nil
}
