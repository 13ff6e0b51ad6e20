package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/pathlight/pathlight/internal/pathdiff"
	"github.com/pathlight/pathlight/internal/pathstate"
)

// handleDiff compares two submitted states. It is stateless: nothing needs
// to exist in storage, so arbitrary documents can be compared.
func handleDiff(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req struct {
		Old pathstate.PathState `json:"old"`
		New pathstate.PathState `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	req.Old.Normalize()
	req.New.Normalize()

	d := pathdiff.Compute(req.Old, req.New)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"diff":        d,
		"summary":     slices.Collect(pathdiff.Summarize(d)),
		"has_changes": d.HasChanges(),
	})
}

// handleApplyDiff replays a diff onto a submitted state.
func handleApplyDiff(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req struct {
		State pathstate.PathState `json:"state"`
		Diff  pathdiff.Diff       `json:"diff"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	req.State.Normalize()

	next := pathdiff.Apply(req.State, req.Diff)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"state": next})
}
