package pathdiff

import (
	"fmt"
	"iter"
	"strings"
)

// Summarize renders d as a lazy sequence of human-readable sentences in a
// fixed order: title, status, steps added, steps removed, steps completed,
// steps reordered, links added, links removed. A diff with nothing to say
// yields the single sentence "No changes." The sequence is finite and can
// be ranged over more than once.
//
// Description and visibility changes are carried in the diff but not
// summarized; the summary is user-facing activity copy, not an exhaustive
// dump.
func Summarize(d Diff) iter.Seq[string] {
	return func(yield func(string) bool) {
		emitted := false
		emit := func(sentence string) bool {
			emitted = true
			return yield(sentence)
		}

		if d.Title != nil {
			if !emit(fmt.Sprintf("Title changed from %q to %q.", d.Title.From, d.Title.To)) {
				return
			}
		}
		if d.Status != nil {
			if !emit(fmt.Sprintf("Status changed from %s to %s.", d.Status.From, d.Status.To)) {
				return
			}
		}
		if n := len(d.Nodes.Added); n > 0 {
			if !emit(fmt.Sprintf("Added %s.", plural(n, "step"))) {
				return
			}
		}
		if n := len(d.Nodes.Removed); n > 0 {
			if !emit(fmt.Sprintf("Removed %s.", plural(n, "step"))) {
				return
			}
		}
		if n := completedCount(d.Nodes.Modified); n > 0 {
			if !emit(fmt.Sprintf("Completed %s.", plural(n, "step"))) {
				return
			}
		}
		if n := len(d.Nodes.Reordered); n > 0 {
			if !emit(fmt.Sprintf("Reordered %s.", plural(n, "step"))) {
				return
			}
		}
		if n := len(d.Edges.Added); n > 0 {
			if !emit(fmt.Sprintf("Added %s.", plural(n, "prerequisite link"))) {
				return
			}
		}
		if n := len(d.Edges.Removed); n > 0 {
			if !emit(fmt.Sprintf("Removed %s.", plural(n, "prerequisite link"))) {
				return
			}
		}

		if !emitted {
			yield("No changes.")
		}
	}
}

// SummaryText joins the summary sentences into one line for storage and
// API responses.
func SummaryText(d Diff) string {
	var sentences []string
	for s := range Summarize(d) {
		sentences = append(sentences, s)
	}
	return strings.Join(sentences, " ")
}

// completedCount counts modified nodes whose completion flag flipped on.
func completedCount(mods []NodeModification) int {
	count := 0
	for _, m := range mods {
		if m.Changes.IsCompleted != nil && m.Changes.IsCompleted.To {
			count++
		}
	}
	return count
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
