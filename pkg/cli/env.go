package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/cli/config"
	"github.com/secmon-lab/bulkdm/pkg/repository/csvfile"
	"github.com/secmon-lab/bulkdm/pkg/service/eventlog"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
)

var (
	errRosterUnavailable = goerr.New("roster is unavailable")
	errSendIncomplete    = goerr.New("some messages were not sent")
)

// environment is the flag state shared by every command
type environment struct {
	app    config.App
	slack  config.Slack
	roster config.Roster
}

// build loads the operator config once and wires the use cases. The
// returned function closes the event log.
func (x *environment) build(ctx context.Context, opts ...usecase.Option) (*usecase.UseCases, func(), error) {
	cfg, err := x.app.Load()
	if err != nil {
		return nil, nil, err
	}

	slackSvc, err := x.slack.Configure(cfg)
	if err != nil {
		return nil, nil, err
	}

	events, err := eventlog.Open(x.app.LogPath())
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open event log")
	}

	opts = append([]usecase.Option{
		usecase.WithConfig(cfg),
		usecase.WithEvents(events),
		usecase.WithRosterOptions(x.roster.Options()...),
	}, opts...)

	uc := usecase.New(csvfile.New(x.app.CSVPath()), slackSvc, opts...)
	return uc, func() { events.Close(ctx) }, nil
}
