package pathdiff

import (
	"github.com/pathlight/pathlight/internal/pathstate"
)

// Apply reconstructs a state by applying d to base. The base is not
// mutated. For a diff produced by Compute(A, B), Apply(A, diff) yields a
// state equivalent to B, except that node array order may differ from B's
// literal ordering: appended nodes land at the end, and the Order field,
// not slice position, is authoritative for display.
//
// Modified or reordered entries whose id is missing from the base node set
// are skipped; removed entries that match nothing are no-ops. Edge
// endpoints are not validated.
func Apply(base pathstate.PathState, d Diff) pathstate.PathState {
	out := base.Clone()

	if d.Title != nil {
		out.Title = d.Title.To
	}
	if d.Description != nil {
		out.Description = d.Description.To
	}
	if d.Status != nil {
		out.Status = d.Status.To
	}
	if d.Visibility != nil {
		out.Visibility = d.Visibility.To
	}

	out.Nodes = applyNodes(out.Nodes, d.Nodes)
	out.Edges = applyEdges(out.Edges, d.Edges)
	out.InferredSkills = applySet(out.InferredSkills, d.Skills)
	out.InferredCareers = applySet(out.InferredCareers, d.Careers)
	return out
}

func applyNodes(nodes []pathstate.Node, nd NodeDiff) []pathstate.Node {
	removed := make(map[string]struct{}, len(nd.Removed))
	for _, n := range nd.Removed {
		removed[n.ID] = struct{}{}
	}

	kept := make([]pathstate.Node, 0, len(nodes)+len(nd.Added))
	for _, n := range nodes {
		if _, gone := removed[n.ID]; !gone {
			kept = append(kept, n)
		}
	}
	for _, n := range nd.Added {
		n.CompletedAt = copyTime(n.CompletedAt)
		kept = append(kept, n)
	}

	byID := make(map[string]int, len(kept))
	for i, n := range kept {
		if _, ok := byID[n.ID]; !ok {
			byID[n.ID] = i
		}
	}

	for _, mod := range nd.Modified {
		i, ok := byID[mod.ID]
		if !ok {
			continue
		}
		if mod.Changes.Title != nil {
			kept[i].Title = mod.Changes.Title.To
		}
		if mod.Changes.IsCompleted != nil {
			kept[i].IsCompleted = mod.Changes.IsCompleted.To
		}
		if mod.Changes.CompletedAt != nil {
			kept[i].CompletedAt = copyTime(mod.Changes.CompletedAt.To)
		}
	}

	for _, oc := range nd.Reordered {
		if i, ok := byID[oc.ID]; ok {
			kept[i].Order = oc.To
		}
	}

	return kept
}

func applyEdges(edges []pathstate.Edge, ed EdgeDiff) []pathstate.Edge {
	removed := edgeSet(ed.Removed)

	kept := make([]pathstate.Edge, 0, len(edges)+len(ed.Added))
	for _, e := range edges {
		if _, gone := removed[e]; !gone {
			kept = append(kept, e)
		}
	}
	return append(kept, ed.Added...)
}

func applySet(tags []string, sd SetDiff) []string {
	removed := stringSet(sd.Removed)

	kept := make([]string, 0, len(tags)+len(sd.Added))
	for _, tag := range tags {
		if _, gone := removed[tag]; !gone {
			kept = append(kept, tag)
		}
	}
	return append(kept, sd.Added...)
}
