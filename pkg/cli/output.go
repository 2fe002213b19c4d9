package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

const failureSampleSize = 5

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

func printRoster(w io.Writer, entries []model.RosterEntry, csvPath string, syncedAt time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSLACK NAME\tGLATS NAME\tEMAIL")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.SlackName, e.GlatsName, e.Email)
	}
	_ = tw.Flush()

	summary := fmt.Sprintf("%d users from %s", len(entries), csvPath)
	if !syncedAt.IsZero() {
		summary += fmt.Sprintf(" (as of %s)", syncedAt.Local().Format(time.DateTime))
	}
	_, _ = dimColor.Fprintln(w, summary)
}

func printSyncResult(w io.Writer, result *model.SyncResult) {
	switch {
	case result.OK:
		_, _ = okColor.Fprint(w, "✔ ")
		_, _ = fmt.Fprintf(w, "Roster ready: %d users in %s\n", len(result.Roster.Entries), result.Roster.CSVPath)
	case result.RateLimited && result.Roster != nil:
		_, _ = warnColor.Fprint(w, "! ")
		_, _ = fmt.Fprintf(w, "Slack rate limited the sync, using %d users from %s%s\n",
			len(result.Roster.Entries), result.Roster.CSVPath, retryHint(result.RetryAfter))
	default:
		_, _ = errColor.Fprint(w, "✘ ")
		_, _ = fmt.Fprintf(w, "Sync failed: %s%s\n", result.Error, retryHint(result.RetryAfter))
	}
	if result.LogPath != "" {
		_, _ = dimColor.Fprintf(w, "  log: %s\n", result.LogPath)
	}
}

func retryHint(retryAfter *int) string {
	if retryAfter == nil {
		return ""
	}
	return fmt.Sprintf(" (retry after %ds)", *retryAfter)
}

func printReport(w io.Writer, report *model.SendReport) {
	prefix := ""
	if report.DryRun {
		prefix = "[dry run] "
	}

	if report.OK {
		_, _ = okColor.Fprint(w, "✔ ")
		_, _ = fmt.Fprintf(w, "%sSent %d messages (batch %s)\n", prefix, report.Sent, report.BatchID)
	} else {
		_, _ = errColor.Fprint(w, "✘ ")
		_, _ = fmt.Fprintf(w, "%sSent %d, failed %d (batch %s)\n", prefix, report.Sent, report.Failed, report.BatchID)
		for _, line := range report.Sample(failureSampleSize) {
			_, _ = fmt.Fprintf(w, "  - %s\n", line)
		}
		if rest := report.Failed - failureSampleSize; rest > 0 {
			_, _ = fmt.Fprintf(w, "  ... and %d more\n", rest)
		}
	}
	if report.LogPath != "" {
		_, _ = dimColor.Fprintf(w, "  log: %s\n", report.LogPath)
	}
}
