package storage

import (
	"errors"
	"time"

	"github.com/pathlight/pathlight/internal/pathdiff"
	"github.com/pathlight/pathlight/internal/pathstate"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PathRecord is a stored learning path: its current state document plus
// bookkeeping timestamps.
type PathRecord struct {
	ID        string              `json:"id"`
	State     pathstate.PathState `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Revision is one audit entry in a path's change history: the diff that
// was applied and its rendered summary. Revisions only record what
// changed between consecutive writes; they are not a replayable version
// store.
type Revision struct {
	ID        int64         `json:"id"`
	PathID    string        `json:"path_id"`
	Diff      pathdiff.Diff `json:"diff"`
	Summary   string        `json:"summary"`
	CreatedAt time.Time     `json:"created_at"`
}
