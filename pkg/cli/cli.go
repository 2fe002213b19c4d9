package cli

import (
	"context"
	"io"
	"os"

	"github.com/secmon-lab/bulkdm/pkg/cli/config"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	return run(ctx, args, version, os.Stdout)
}

func run(ctx context.Context, args []string, version string, w io.Writer) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	env := &environment{}
	var closers []func()

	flags := loggerCfg.Flags()
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, env.app.Flags()...)
	flags = append(flags, env.slack.Flags()...)

	app := &cli.Command{
		Name:    "bulkdm",
		Usage:   "Send personalized Slack DMs to a roster of workspace members",
		Version: version,
		Flags:   flags,
		Writer:  w,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, f)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return ctx, err
			}
			closers = append(closers, flush)

			logging.Default().Debug("Starting bulkdm",
				"logger", loggerCfg,
				"sentry", sentryCfg,
				"app", env.app,
				"slack", env.slack)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdRoster(env),
			cmdSend(env),
			cmdServe(env),
			cmdLogPath(env),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}
