package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdRoster(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "roster",
		Aliases: []string{"r"},
		Usage:   "Inspect and refresh the Slack user roster",
		Flags:   env.roster.Flags(),
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print the roster stored in the CSV",
				Action: func(ctx context.Context, c *cli.Command) error {
					uc, closer, err := env.build(ctx)
					if err != nil {
						return err
					}
					defer closer()

					if _, err := uc.Roster.ReloadIfChanged(ctx); err != nil {
						return err
					}
					printRoster(c.Root().Writer, uc.Roster.Cached(), uc.Roster.CSVPath(), uc.Roster.LastSyncedAt())
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Fetch members from Slack unless the CSV is fresh",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Ignore the refresh window and always call Slack",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					uc, closer, err := env.build(ctx)
					if err != nil {
						return err
					}
					defer closer()

					result := uc.Roster.Sync(ctx, c.Bool("force"))
					printSyncResult(c.Root().Writer, result)
					if result.Roster == nil {
						return goerr.Wrap(errRosterUnavailable, result.Error)
					}
					return nil
				},
			},
			{
				Name:  "reload",
				Usage: "Reload the roster from the CSV without calling Slack",
				Action: func(ctx context.Context, c *cli.Command) error {
					uc, closer, err := env.build(ctx)
					if err != nil {
						return err
					}
					defer closer()

					roster, err := uc.Roster.ReloadFromCSV(ctx)
					if err != nil {
						return err
					}
					_, _ = okColor.Fprint(c.Root().Writer, "✔ ")
					_, _ = fmt.Fprintf(c.Root().Writer, "Reloaded %d users from %s\n", len(roster.Entries), roster.CSVPath)
					return nil
				},
			},
			{
				Name:  "open",
				Usage: "Open the roster CSV in the system viewer",
				Action: func(ctx context.Context, c *cli.Command) error {
					uc, closer, err := env.build(ctx)
					if err != nil {
						return err
					}
					defer closer()

					return uc.Roster.OpenRosterFile(ctx)
				},
			},
		},
	}
}

func cmdLogPath(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "log-path",
		Usage: "Print the event log location",
		Action: func(ctx context.Context, c *cli.Command) error {
			_, err := fmt.Fprintln(c.Root().Writer, env.app.LogPath())
			return err
		},
	}
}
