// Package memory keeps the roster in process memory, for callers that must
// control the roster age without touching the filesystem.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// RosterStore is an in-memory interfaces.RosterStore
type RosterStore struct {
	mu      sync.RWMutex
	path    string
	entries []model.RosterEntry
	exists  bool
	modTime time.Time
	saves   int
	failErr error
	now     func() time.Time
}

var _ interfaces.RosterStore = (*RosterStore)(nil)

// New creates an empty store reporting path as its location
func New(path string) *RosterStore {
	return &RosterStore{
		path: path,
		now:  time.Now,
	}
}

// Path returns the reported location
func (r *RosterStore) Path() string {
	return r.path
}

// ModTime returns the time of the last write
func (r *RosterStore) ModTime(ctx context.Context) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modTime, r.exists, nil
}

// LoadEntries returns a copy of the stored roster without usernames, the
// same shape a CSV reload produces
func (r *RosterStore) LoadEntries(ctx context.Context) ([]model.RosterEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.exists {
		return nil, nil
	}

	entries := make([]model.RosterEntry, len(r.entries))
	for i, e := range r.entries {
		e.Username = ""
		entries[i] = e
	}
	return entries, nil
}

// LoadAnnotations returns the id -> annotation map
func (r *RosterStore) LoadAnnotations(ctx context.Context) (map[model.SlackUserID]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	annotations := make(map[model.SlackUserID]string, len(r.entries))
	for _, e := range r.entries {
		annotations[e.ID] = e.GlatsName
	}
	return annotations, nil
}

// Save replaces the stored roster
func (r *RosterStore) Save(ctx context.Context, entries []model.RosterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return goerr.Wrap(r.failErr, "failed to save roster", goerr.V("path", r.path))
	}

	r.entries = append([]model.RosterEntry(nil), entries...)
	r.exists = true
	r.modTime = r.now()
	r.saves++
	return nil
}

// Seed stores entries as if they had been written at modTime
func (r *RosterStore) Seed(entries []model.RosterEntry, modTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]model.RosterEntry(nil), entries...)
	r.exists = true
	r.modTime = modTime
}

// SetClock overrides the clock used to stamp writes
func (r *RosterStore) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailSaves makes every following Save return err. Pass nil to recover.
func (r *RosterStore) FailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Saves returns how many times Save succeeded
func (r *RosterStore) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
