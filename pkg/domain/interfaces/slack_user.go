package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// RosterStore persists the roster between runs.
//
// Writes always replace the whole roster. There is no per-entry update:
// a remote fetch or a reload from disk swaps the full set.
type RosterStore interface {
	// Path returns the location shown to the operator
	Path() string

	// ModTime returns the last modification time and whether the roster exists
	ModTime(ctx context.Context) (time.Time, bool, error)

	// LoadEntries returns the persisted roster. A missing roster is empty, not an error.
	LoadEntries(ctx context.Context) ([]model.RosterEntry, error)

	// LoadAnnotations returns the id -> annotation map. A missing roster or
	// a roster without the id/annotation columns yields an empty map.
	LoadAnnotations(ctx context.Context) (map[model.SlackUserID]string, error)

	// Save replaces the persisted roster in one atomic write
	Save(ctx context.Context, entries []model.RosterEntry) error
}
