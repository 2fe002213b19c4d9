package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/bulkdm/pkg/service/worker"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Roster tunes how often the roster is refreshed from Slack
type Roster struct {
	window   time.Duration
	interval time.Duration
	watch    bool
}

func (x *Roster) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "refresh-window",
			Usage:       "Reuse the roster CSV instead of calling Slack when it is younger than this",
			Category:    "Roster",
			Value:       usecase.DefaultRefreshWindow,
			Destination: &x.window,
			Sources:     cli.EnvVars("BULKDM_REFRESH_WINDOW"),
		},
		&cli.DurationFlag{
			Name:        "refresh-interval",
			Usage:       "How often the server checks whether the roster needs a refresh",
			Category:    "Roster",
			Value:       worker.DefaultRefreshInterval,
			Destination: &x.interval,
			Sources:     cli.EnvVars("BULKDM_REFRESH_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:        "watch-csv",
			Usage:       "Reload the roster when the CSV is edited while the server runs",
			Category:    "Roster",
			Value:       true,
			Destination: &x.watch,
			Sources:     cli.EnvVars("BULKDM_WATCH_CSV"),
		},
	}
}

func (x Roster) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("window", x.window.String()),
		slog.String("interval", x.interval.String()),
		slog.Bool("watch", x.watch),
	)
}

// Options returns the roster coordinator options for this group
func (x *Roster) Options() []usecase.RosterOption {
	if x.window <= 0 {
		return nil
	}
	return []usecase.RosterOption{usecase.WithRefreshWindow(x.window)}
}

// Worker creates the refresh worker driving roster
func (x *Roster) Worker(roster worker.RosterSyncer) *worker.RosterRefreshWorker {
	return worker.NewRosterRefreshWorker(roster, x.interval, worker.WithFileWatch(x.watch))
}
