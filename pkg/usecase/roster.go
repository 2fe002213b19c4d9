package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pkg/browser"
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/service/eventlog"
	slacksvc "github.com/secmon-lab/bulkdm/pkg/service/slack"
	"github.com/secmon-lab/bulkdm/pkg/utils/async"
	"github.com/secmon-lab/bulkdm/pkg/utils/errutil"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshWindow is the minimum age of the roster file before
// SyncThrottled calls Slack again
const DefaultRefreshWindow = time.Hour

const (
	flightThrottled = "throttled"
	flightCore      = "core"

	defaultSyncError = "Failed to sync users from Slack."
)

// RosterListener receives the roster after every successful remote sync
type RosterListener func(ctx context.Context, roster model.Roster)

// rosterState is one immutable snapshot of the in-memory roster
type rosterState struct {
	entries     []model.RosterEntry
	syncedAt    time.Time
	fileModTime time.Time // roster file version the entries were built from
}

// RosterUseCase owns the in-memory roster and coordinates refreshes from
// Slack and from the roster file.
//
// At most one remote fetch runs at a time. Concurrent callers of
// SyncThrottled or SyncCore attach to the fetch already in flight and
// receive the same *model.SyncResult.
type RosterUseCase struct {
	store  interfaces.RosterStore
	slack  slacksvc.Service
	events interfaces.EventLog
	filter model.CohortFilter
	window time.Duration
	now    func() time.Time
	opener func(path string) error

	state  atomic.Pointer[rosterState]
	flight singleflight.Group

	// writeMu serializes cache writers so a reload cannot commit a file
	// version older than one a sync already stored
	writeMu sync.Mutex

	listenerMu sync.Mutex
	listeners  map[int]RosterListener
	nextID     int
}

// RosterOption configures RosterUseCase
type RosterOption func(*RosterUseCase)

// WithRefreshWindow overrides DefaultRefreshWindow
func WithRefreshWindow(d time.Duration) RosterOption {
	return func(uc *RosterUseCase) {
		uc.window = d
	}
}

// WithCohortFilter restricts fetched members to the configured cohort
func WithCohortFilter(f model.CohortFilter) RosterOption {
	return func(uc *RosterUseCase) {
		uc.filter = f
	}
}

// WithEventLog sets the operator-facing event log
func WithEventLog(events interfaces.EventLog) RosterOption {
	return func(uc *RosterUseCase) {
		uc.events = events
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) RosterOption {
	return func(uc *RosterUseCase) {
		uc.now = now
	}
}

// WithFileOpener overrides how OpenRosterFile hands the file to the desktop
func WithFileOpener(open func(path string) error) RosterOption {
	return func(uc *RosterUseCase) {
		uc.opener = open
	}
}

// NewRosterUseCase creates a coordinator with an empty in-memory roster
func NewRosterUseCase(store interfaces.RosterStore, slackService slacksvc.Service, opts ...RosterOption) *RosterUseCase {
	uc := &RosterUseCase{
		store:     store,
		slack:     slackService,
		events:    (*eventlog.Logger)(nil),
		window:    DefaultRefreshWindow,
		now:       time.Now,
		opener:    browser.OpenFile,
		listeners: make(map[int]RosterListener),
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.events == nil {
		uc.events = (*eventlog.Logger)(nil)
	}
	uc.state.Store(&rosterState{})
	return uc
}

// Cached returns the current snapshot. It never blocks and never does I/O.
func (uc *RosterUseCase) Cached() []model.RosterEntry {
	return slices.Clone(uc.state.Load().entries)
}

// LastSyncedAt returns when the cached roster was last fetched from Slack,
// or the roster file's modification time after a reload. Zero before the
// first load.
func (uc *RosterUseCase) LastSyncedAt() time.Time {
	return uc.state.Load().syncedAt
}

// CSVPath returns the roster file location
func (uc *RosterUseCase) CSVPath() string {
	return uc.store.Path()
}

// LogPath returns the event log location
func (uc *RosterUseCase) LogPath() string {
	return uc.events.Path()
}

// Subscribe registers fn to receive the roster after each successful remote
// sync. Listeners run asynchronously. The returned function unregisters fn.
func (uc *RosterUseCase) Subscribe(fn RosterListener) func() {
	uc.listenerMu.Lock()
	defer uc.listenerMu.Unlock()

	id := uc.nextID
	uc.nextID++
	uc.listeners[id] = fn

	return func() {
		uc.listenerMu.Lock()
		defer uc.listenerMu.Unlock()
		delete(uc.listeners, id)
	}
}

// Sync is the entry point used by the presentation layer. force bypasses the
// refresh window.
func (uc *RosterUseCase) Sync(ctx context.Context, force bool) *model.SyncResult {
	if force {
		return uc.SyncCore(ctx)
	}
	return uc.SyncThrottled(ctx)
}

// SyncThrottled reloads the roster file when it is younger than the refresh
// window and fetches from Slack otherwise.
func (uc *RosterUseCase) SyncThrottled(ctx context.Context) *model.SyncResult {
	return uc.do(ctx, flightThrottled, func(ctx context.Context) *model.SyncResult {
		modTime, exists, err := uc.store.ModTime(ctx)
		if err != nil {
			logging.From(ctx).Warn("failed to stat roster file, syncing from Slack",
				"error", err.Error(), "path", uc.store.Path())
		} else if exists && uc.now().Sub(modTime) < uc.window {
			roster, err := uc.reload(ctx)
			if err == nil {
				result := model.SyncSucceeded(roster)
				result.LogPath = uc.LogPath()
				return result
			}
			logging.From(ctx).Warn("failed to reload fresh roster file, syncing from Slack",
				"error", err.Error(), "path", uc.store.Path())
		}

		return uc.SyncCore(ctx)
	})
}

// SyncCore always fetches from Slack. Prior annotations are carried over by
// id, then the cache and the roster file are replaced and listeners are
// notified.
//
// When Slack rate limits the fetch and a roster file exists, the cache is
// reloaded from the file and the result is a soft failure with
// RateLimited set. Any other failure leaves the cache untouched.
func (uc *RosterUseCase) SyncCore(ctx context.Context) *model.SyncResult {
	return uc.do(ctx, flightCore, uc.syncCore)
}

func (uc *RosterUseCase) syncCore(ctx context.Context) *model.SyncResult {
	started := uc.now()
	uc.events.Info(ctx, "sync_users_started", nil)

	annotations, err := uc.store.LoadAnnotations(ctx)
	if err != nil {
		return uc.syncFailed(ctx, goerr.Wrap(err, "failed to load annotations",
			goerr.V(CSVPathKey, uc.store.Path())), nil)
	}

	fetched, err := uc.slack.ListMembers(ctx, uc.filter)
	if err != nil {
		return uc.fetchFailed(ctx, err)
	}

	merged := model.MergeAnnotations(fetched, annotations)

	uc.writeMu.Lock()
	if err := uc.store.Save(ctx, merged); err != nil {
		uc.writeMu.Unlock()
		return uc.syncFailed(ctx, err, nil)
	}
	fileModTime, _, _ := uc.store.ModTime(ctx)
	uc.state.Store(&rosterState{entries: merged, syncedAt: started, fileModTime: fileModTime})
	uc.writeMu.Unlock()

	roster := model.Roster{Entries: slices.Clone(merged), CSVPath: uc.store.Path()}
	uc.events.Info(ctx, "sync_users_success", map[string]any{
		"count":       len(merged),
		"csvPath":     roster.CSVPath,
		"duration_ms": uc.now().Sub(started).Milliseconds(),
	})
	uc.notify(ctx, roster)

	result := model.SyncSucceeded(&roster)
	result.LogPath = uc.LogPath()
	return result
}

// fetchFailed classifies a Slack failure and falls back to the roster file
// on rate limits
func (uc *RosterUseCase) fetchFailed(ctx context.Context, err error) *model.SyncResult {
	remote := slacksvc.ClassifyError(err)
	retryAfter := model.RetryAfterSeconds(remote.RetryAfter)

	if !remote.RateLimited() {
		return uc.syncFailed(ctx, err, &remote)
	}

	_, exists, statErr := uc.store.ModTime(ctx)
	if statErr != nil || !exists {
		return uc.syncFailed(ctx, err, &remote)
	}

	roster, reloadErr := uc.reload(ctx)
	if reloadErr != nil {
		_ = errutil.Handle(ctx, reloadErr, "failed to reload roster after rate limit")
		return uc.syncFailed(ctx, err, &remote)
	}

	uc.events.Info(ctx, "sync_users_rate_limited_using_cache", map[string]any{
		"csvPath":    roster.CSVPath,
		"retryAfter": retryAfter,
		"count":      len(roster.Entries),
	})
	logging.From(ctx).Warn("Slack rate limited roster sync, using roster file",
		"retry_after", remote.RetryAfter.String(),
		"count", len(roster.Entries))

	result := model.SyncRateLimited(roster, messageOf(remote), retryAfter)
	result.LogPath = uc.LogPath()
	return result
}

// syncFailed records a hard failure. remote is nil for failures that did
// not come from Slack.
func (uc *RosterUseCase) syncFailed(ctx context.Context, err error, remote *slacksvc.RemoteError) *model.SyncResult {
	if remote == nil {
		classified := slacksvc.ClassifyError(err)
		remote = &classified
	}
	msg := messageOf(*remote)
	retryAfter := model.RetryAfterSeconds(remote.RetryAfter)

	data := map[string]any{
		"error":      msg,
		"retryAfter": retryAfter,
	}
	if remote.StatusCode != 0 {
		data["statusCode"] = remote.StatusCode
	} else if remote.Code != "" {
		data["statusCode"] = remote.Code
	}
	uc.events.Error(ctx, "sync_users_failed", data)
	_ = errutil.Handle(ctx, err, "failed to sync roster")

	result := model.SyncFailed(msg, remote.RateLimited(), retryAfter)
	result.LogPath = uc.LogPath()
	return result
}

func messageOf(remote slacksvc.RemoteError) string {
	if remote.Message == "" {
		return defaultSyncError
	}
	return remote.Message
}

// ReloadFromCSV replaces the cache with the roster file, ignoring the
// refresh window and never calling Slack
func (uc *RosterUseCase) ReloadFromCSV(ctx context.Context) (*model.Roster, error) {
	roster, err := uc.reload(ctx)
	if err != nil {
		if errors.Is(err, ErrRosterFileNotFound) {
			uc.events.Error(ctx, "reload_csv_not_found", map[string]any{"csvPath": uc.store.Path()})
		} else {
			uc.events.Error(ctx, "reload_csv_failed", map[string]any{
				"csvPath": uc.store.Path(),
				"error":   err.Error(),
			})
		}
		return nil, err
	}

	uc.events.Info(ctx, "reload_csv_success", map[string]any{
		"count":   len(roster.Entries),
		"csvPath": roster.CSVPath,
	})
	return roster, nil
}

// ReloadIfChanged reloads the roster file when it differs from the version
// the cache was built from. It reports whether a reload happened.
func (uc *RosterUseCase) ReloadIfChanged(ctx context.Context) (bool, error) {
	modTime, exists, err := uc.store.ModTime(ctx)
	if err != nil || !exists {
		return false, err
	}
	if modTime.Equal(uc.state.Load().fileModTime) {
		return false, nil
	}
	if _, err := uc.ReloadFromCSV(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// reload reads the roster file into the cache. Annotations are taken from
// the trimmed annotation column.
func (uc *RosterUseCase) reload(ctx context.Context) (*model.Roster, error) {
	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	modTime, exists, err := uc.store.ModTime(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, goerr.Wrap(ErrRosterFileNotFound, "roster file not found",
			goerr.V(CSVPathKey, uc.store.Path()))
	}

	entries, err := uc.store.LoadEntries(ctx)
	if err != nil {
		return nil, err
	}
	annotations, err := uc.store.LoadAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if a, ok := annotations[entries[i].ID]; ok {
			entries[i].GlatsName = a
		}
	}
	entries = model.Dedupe(entries)

	uc.state.Store(&rosterState{entries: entries, syncedAt: modTime, fileModTime: modTime})
	return &model.Roster{Entries: slices.Clone(entries), CSVPath: uc.store.Path()}, nil
}

// OpenRosterFile opens the roster file with the desktop's default viewer
func (uc *RosterUseCase) OpenRosterFile(ctx context.Context) error {
	path := uc.store.Path()

	_, exists, err := uc.store.ModTime(ctx)
	if err != nil {
		return err
	}
	if !exists {
		uc.events.Error(ctx, "open_csv_not_found", map[string]any{"csvPath": path})
		return goerr.Wrap(ErrRosterFileNotFound, "roster file not found", goerr.V(CSVPathKey, path))
	}

	if err := uc.opener(path); err != nil {
		uc.events.Error(ctx, "open_csv_failed", map[string]any{
			"csvPath": path,
			"error":   err.Error(),
		})
		return goerr.Wrap(err, "failed to open roster file", goerr.V(CSVPathKey, path))
	}

	uc.events.Info(ctx, "open_csv_success", map[string]any{"csvPath": path})
	return nil
}

// do runs fn inside the named flight. The flight is detached from the
// caller's cancellation so that one caller giving up does not fail the
// others. A panic in fn becomes a failed result for every caller.
func (uc *RosterUseCase) do(ctx context.Context, key string, fn func(ctx context.Context) *model.SyncResult) *model.SyncResult {
	v, _, _ := uc.flight.Do(key, func() (result any, err error) {
		flightCtx := context.WithoutCancel(ctx)
		defer func() {
			if r := recover(); r != nil {
				result = uc.syncFailed(flightCtx,
					goerr.New("roster sync crashed", goerr.V("panic", fmt.Sprint(r))),
					&slacksvc.RemoteError{Message: fmt.Sprint(r)})
			}
		}()
		return fn(flightCtx), nil
	})
	return v.(*model.SyncResult)
}

func (uc *RosterUseCase) notify(ctx context.Context, roster model.Roster) {
	uc.listenerMu.Lock()
	listeners := make([]RosterListener, 0, len(uc.listeners))
	for _, fn := range uc.listeners {
		listeners = append(listeners, fn)
	}
	uc.listenerMu.Unlock()

	for _, fn := range listeners {
		snapshot := model.Roster{Entries: slices.Clone(roster.Entries), CSVPath: roster.CSVPath}
		async.Dispatch(ctx, "roster_listener", func(ctx context.Context) error {
			fn(ctx, snapshot)
			return nil
		})
	}
}
