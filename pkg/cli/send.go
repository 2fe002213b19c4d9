package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdSend(env *environment) *cli.Command {
	var (
		to             []string
		all            bool
		text           string
		textFile       string
		attachmentsDir string
		sendRate       float64
		dryRun         bool
	)

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "to",
			Usage:       "Recipient Slack user ID (repeatable)",
			Destination: &to,
		},
		&cli.BoolFlag{
			Name:        "all",
			Usage:       "Send to every user in the roster",
			Destination: &all,
		},
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"m"},
			Usage:       "Message body, sent after the greeting",
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "text-file",
			Usage:       "Read the message body from a file",
			Destination: &textFile,
		},
		&cli.StringFlag{
			Name:        "attachments-dir",
			Aliases:     []string{"a"},
			Usage:       "Directory holding one <name>.pdf per recipient",
			Destination: &attachmentsDir,
		},
		&cli.FloatFlag{
			Name:        "send-rate",
			Usage:       "Maximum recipients per second (0 for unlimited)",
			Value:       1,
			Destination: &sendRate,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Resolve recipients and attachments without sending",
			Destination: &dryRun,
		},
	}
	flags = append(flags, env.roster.Flags()...)

	return &cli.Command{
		Name:  "send",
		Usage: "Send a personalized DM to each recipient",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer

			if textFile != "" {
				// #nosec G304 - path is provided by the operator
				data, err := os.ReadFile(textFile)
				if err != nil {
					return goerr.Wrap(err, "failed to read message file", goerr.V("path", textFile))
				}
				text = string(data)
			}

			uc, closer, err := env.build(ctx, usecase.WithDispatchOptions(
				usecase.WithSendRate(sendRate),
				usecase.WithDryRun(dryRun),
			))
			if err != nil {
				return err
			}
			defer closer()

			result := uc.Roster.SyncThrottled(ctx)
			printSyncResult(w, result)
			if result.Roster == nil {
				return goerr.Wrap(errRosterUnavailable, result.Error)
			}

			req := model.SendRequest{Text: text}
			if all {
				for _, e := range uc.Roster.Cached() {
					req.RecipientIDs = append(req.RecipientIDs, e.ID)
				}
			}
			for _, id := range to {
				req.RecipientIDs = append(req.RecipientIDs, model.SlackUserID(id))
			}

			if attachmentsDir != "" {
				dir, err := uc.Dispatch.ChooseAttachmentsDir(ctx, attachmentsDir)
				if err != nil {
					return err
				}
				req.AttachmentsDir = dir.Path
				_, _ = fmt.Fprintf(w, "Attachments: %s (%d PDFs)\n", dir.Path, dir.PDFCount)
			}

			if err := usecase.ValidateSendRequest(req); err != nil {
				return err
			}

			report := uc.Dispatch.SendTo(ctx, req)
			printReport(w, report)
			if !report.OK {
				return goerr.Wrap(errSendIncomplete, "batch finished with failures",
					goerr.V("batch_id", report.BatchID),
					goerr.V("failed", report.Failed))
			}
			return nil
		},
	}
}
