package worker

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
)

const (
	// DefaultRefreshInterval is how often the worker asks for a throttled sync
	DefaultRefreshInterval = 15 * time.Minute
	// DefaultDebounce absorbs the burst of events an editor produces on save
	DefaultDebounce = 250 * time.Millisecond
)

// RosterSyncer is the part of the roster coordinator the worker drives
type RosterSyncer interface {
	SyncThrottled(ctx context.Context) *model.SyncResult
	ReloadIfChanged(ctx context.Context) (bool, error)
	CSVPath() string
}

// RosterRefreshWorker keeps the in-memory roster current while the server
// runs. It requests a throttled sync on every tick, so Slack is called at
// most once per refresh window, and reloads the roster file when an
// operator edits it.
//
// Architecture assumptions:
// - Single process owns the roster file (no cross-process locking)
type RosterRefreshWorker struct {
	roster   RosterSyncer
	interval time.Duration
	debounce time.Duration
	watch    bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Option configures RosterRefreshWorker
type Option func(*RosterRefreshWorker)

// WithDebounce overrides DefaultDebounce
func WithDebounce(d time.Duration) Option {
	return func(w *RosterRefreshWorker) {
		w.debounce = d
	}
}

// WithFileWatch enables or disables watching the roster file
func WithFileWatch(enabled bool) Option {
	return func(w *RosterRefreshWorker) {
		w.watch = enabled
	}
}

// NewRosterRefreshWorker creates a new worker for refreshing the roster
func NewRosterRefreshWorker(roster RosterSyncer, interval time.Duration, opts ...Option) *RosterRefreshWorker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	w := &RosterRefreshWorker{
		roster:   roster,
		interval: interval,
		debounce: DefaultDebounce,
		watch:    true,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background refresh loop
// - Initial sync and periodic refresh both run in a background goroutine
// - Does not block server startup
func (w *RosterRefreshWorker) Start(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if w.watch {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return goerr.Wrap(err, "failed to create roster file watcher")
		}
		// the file may not exist yet, so watch its directory
		dir := filepath.Dir(w.roster.CSVPath())
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return goerr.Wrap(err, "failed to watch roster directory", goerr.V("dir", dir))
		}
	}

	logging.From(ctx).Info("Roster refresh worker starting",
		"interval", w.interval.String(),
		"watch", w.watch,
		"path", w.roster.CSVPath())

	go w.run(ctx, watcher)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *RosterRefreshWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("Roster refresh worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
	logging.Default().Info("Roster refresh worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *RosterRefreshWorker) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.doneCh)

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
		events = watcher.Events
		errs = watcher.Errors
	}

	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// reload fires once the file has been quiet for the debounce period
	var reload <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	file := filepath.Base(w.roster.CSVPath())

	for {
		select {
		case <-ticker.C:
			w.refresh(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			w.reload(ctx)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.From(ctx).Warn("Roster file watch error", "error", err.Error())

		case <-w.stopCh:
			logging.Default().Info("Roster refresh worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Roster refresh worker context cancelled")
			return
		}
	}
}

// refresh performs a single throttled sync. Failures are already recorded
// in the event log by the coordinator, so they are only logged here.
func (w *RosterRefreshWorker) refresh(ctx context.Context) {
	startTime := time.Now()
	result := w.roster.SyncThrottled(ctx)

	logger := logging.From(ctx)
	switch {
	case result.OK:
		logger.Info("Roster refresh completed",
			"count", len(result.Roster.Entries),
			"duration", time.Since(startTime).String())
	case result.RateLimited:
		logger.Warn("Roster refresh rate limited (will retry next interval)",
			"error", result.Error,
			"retry_after", result.RetryAfter)
	default:
		logger.Error("Roster refresh failed (will retry next interval)",
			"error", result.Error)
	}
}

func (w *RosterRefreshWorker) reload(ctx context.Context) {
	reloaded, err := w.roster.ReloadIfChanged(ctx)
	if err != nil {
		logging.From(ctx).Warn("Failed to reload edited roster file", "error", err.Error())
		return
	}
	if reloaded {
		logging.From(ctx).Info("Roster file changed, cache reloaded", "path", w.roster.CSVPath())
	}
}
