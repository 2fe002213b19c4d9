package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
	slackgo "github.com/slack-go/slack"
)

// staticRoster is a fixed roster snapshot
type staticRoster []model.RosterEntry

func (s staticRoster) Cached() []model.RosterEntry {
	return append([]model.RosterEntry(nil), s...)
}

// panicRoster crashes before the send loop starts
type panicRoster struct{}

func (panicRoster) Cached() []model.RosterEntry {
	panic("roster unavailable")
}

var testRoster = staticRoster{
	{ID: "A", SlackName: "Alice", GlatsName: "Alice Annotated"},
	{ID: "B", SlackName: "Bob"},
	{ID: "C", SlackName: "Carol"},
}

func fixedBatchID() usecase.DispatchOption {
	return usecase.WithBatchIDGenerator(func() string { return "batch-1" })
}

func TestDispatchUseCase_SendTo(t *testing.T) {
	ctx := context.Background()

	t.Run("sends greeting and body to every recipient", func(t *testing.T) {
		slack := newMockSlackService()
		events := &recordingEvents{}
		uc := usecase.NewDispatchUseCase(testRoster, slack, fixedBatchID(), usecase.WithSendEventLog(events))

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "Your payslip is ready.",
		})

		gt.Bool(t, report.OK).True()
		gt.Value(t, report.BatchID).Equal("batch-1")
		gt.Number(t, report.Sent).Equal(2)
		gt.Number(t, report.Failed).Equal(0)
		gt.Array(t, report.Failures).Length(0)
		gt.Value(t, report.LogPath).Equal("/var/log/bulkdm.log")

		gt.Value(t, slack.postedTexts["DA"]).Equal("Hello Alice Annotated,\n\nYour payslip is ready.")
		gt.Value(t, slack.postedTexts["DB"]).Equal("Hello Bob,\n\nYour payslip is ready.")

		names := events.names()
		gt.Value(t, names[0]).Equal("send_dms_handler_invoked")
		gt.Value(t, names[len(names)-1]).Equal("send_dms_finished")
	})

	t.Run("isolates per-recipient failures", func(t *testing.T) {
		slack := newMockSlackService()
		slack.openFn = func(ctx context.Context, userID model.SlackUserID) (string, error) {
			if userID == "B" {
				return "", slackgo.SlackErrorResponse{Err: "user_not_found"}
			}
			return "D" + string(userID), nil
		}
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B", "C"},
			Text:         "hi",
		})

		gt.Bool(t, report.OK).False()
		gt.Number(t, report.Sent).Equal(2)
		gt.Number(t, report.Failed).Equal(1)
		gt.Array(t, report.Failures).Length(1).Required()
		gt.Value(t, report.Failures[0].RecipientID).Equal(model.SlackUserID("B"))
		gt.Value(t, report.Failures[0].Error).Equal("user_not_found")
		gt.Value(t, slack.posted).Equal([]string{"DA", "DC"})
	})

	t.Run("rate limit on one recipient does not abort the batch", func(t *testing.T) {
		slack := newMockSlackService()
		slack.postFn = func(ctx context.Context, channelID, text string) error {
			if channelID == "DA" {
				return &slackgo.RateLimitedError{RetryAfter: time.Second}
			}
			return nil
		}
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "hi",
		})
		gt.Number(t, report.Sent).Equal(1)
		gt.Number(t, report.Failed).Equal(1)
		gt.Value(t, report.Failures[0].RecipientID).Equal(model.SlackUserID("A"))
	})

	t.Run("unknown recipient is not in cache", func(t *testing.T) {
		slack := newMockSlackService()
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"Z"},
			Text:         "hi",
		})
		gt.Number(t, report.Failed).Equal(1)
		gt.String(t, report.Failures[0].Error).Contains("not found in cache")
		gt.Array(t, slack.opened).Length(0)
	})

	t.Run("missing channel id fails only that recipient", func(t *testing.T) {
		slack := newMockSlackService()
		slack.openFn = func(ctx context.Context, userID model.SlackUserID) (string, error) {
			if userID == "A" {
				return "", errors.New("No channel id returned by Slack.")
			}
			return "D" + string(userID), nil
		}
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "C"},
			Text:         "hi",
		})
		gt.Number(t, report.Sent).Equal(1)
		gt.Value(t, report.Failures[0].Error).Equal("No channel id returned by Slack.")
	})

	t.Run("crash before the loop fails every recipient", func(t *testing.T) {
		slack := newMockSlackService()
		events := &recordingEvents{}
		uc := usecase.NewDispatchUseCase(panicRoster{}, slack, usecase.WithSendEventLog(events))

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "hi",
		})
		gt.Bool(t, report.OK).False()
		gt.Number(t, report.Sent).Equal(0)
		gt.Number(t, report.Failed).Equal(2)
		gt.Value(t, report.Failures[1].Error).Equal("roster unavailable")
		gt.Bool(t, events.has("send_dms_handler_crashed")).True()
	})

	t.Run("crash while starting the batch fails every recipient", func(t *testing.T) {
		slack := newMockSlackService()
		events := &recordingEvents{}
		uc := usecase.NewDispatchUseCase(testRoster, slack,
			usecase.WithSendEventLog(events),
			usecase.WithBatchIDGenerator(func() string { panic("no batch id") }))

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "hi",
		})
		gt.Value(t, report).NotNil().Required()
		gt.Bool(t, report.OK).False()
		gt.Number(t, report.Failed).Equal(2)
		gt.Value(t, report.Failures[0].Error).Equal("no batch id")
		gt.Bool(t, events.has("send_dms_handler_crashed")).True()
		gt.Array(t, slack.opened).Length(0)
	})

	t.Run("crash mid-batch keeps earlier outcomes", func(t *testing.T) {
		slack := newMockSlackService()
		slack.openFn = func(ctx context.Context, userID model.SlackUserID) (string, error) {
			if userID == "B" {
				panic("unexpected")
			}
			return "D" + string(userID), nil
		}
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B", "C"},
			Text:         "hi",
		})
		gt.Bool(t, report.OK).False()
		gt.Number(t, report.Sent).Equal(1)
		gt.Number(t, report.Failed).Equal(2)
		gt.Value(t, report.Failures[0].RecipientID).Equal(model.SlackUserID("B"))
		gt.Value(t, report.Failures[1].RecipientID).Equal(model.SlackUserID("C"))
	})

	t.Run("dry run calls nothing", func(t *testing.T) {
		slack := newMockSlackService()
		uc := usecase.NewDispatchUseCase(testRoster, slack, usecase.WithDryRun(true))

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "hi",
		})
		gt.Bool(t, report.OK).True()
		gt.Bool(t, report.DryRun).True()
		gt.Number(t, report.Sent).Equal(2)
		gt.Array(t, slack.opened).Length(0)
	})

	t.Run("send rate paces recipients", func(t *testing.T) {
		slack := newMockSlackService()
		uc := usecase.NewDispatchUseCase(testRoster, slack, usecase.WithSendRate(20))

		start := time.Now()
		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B", "C"},
			Text:         "hi",
		})
		gt.Number(t, report.Sent).Equal(3)
		gt.Bool(t, time.Since(start) >= 90*time.Millisecond).True()
	})

	t.Run("cancelled pacing fails the remaining recipients", func(t *testing.T) {
		slack := newMockSlackService()
		uc := usecase.NewDispatchUseCase(testRoster, slack, usecase.WithSendRate(1))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		report := uc.SendTo(cancelled, model.SendRequest{
			RecipientIDs: []model.SlackUserID{"A", "B"},
			Text:         "hi",
		})
		gt.Bool(t, report.OK).False()
		gt.Number(t, report.Failed).Equal(2)
		gt.Value(t, report.Failures[0].Error).Equal("context canceled")
		gt.Array(t, slack.opened).Length(0)
	})
}

func TestDispatchUseCase_Attachments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "Alice Annotated.pdf"), []byte("%PDF"), 0o600)).Required()

	t.Run("uploads the file with the greeting as comment", func(t *testing.T) {
		slack := newMockSlackService()
		uc := usecase.NewDispatchUseCase(testRoster, slack)

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs:   []model.SlackUserID{"A"},
			Text:           "see attached",
			AttachmentsDir: dir,
		})
		gt.Bool(t, report.OK).True()
		gt.Value(t, slack.uploaded).Equal([]string{filepath.Join(dir, "Alice Annotated.pdf")})
		gt.Value(t, slack.postedTexts["DA"]).Equal("Hello Alice Annotated,\n\nsee attached")
		gt.Array(t, slack.posted).Length(0)
	})

	t.Run("missing attachment skips the recipient", func(t *testing.T) {
		slack := newMockSlackService()
		events := &recordingEvents{}
		uc := usecase.NewDispatchUseCase(testRoster, slack, usecase.WithSendEventLog(events))

		report := uc.SendTo(ctx, model.SendRequest{
			RecipientIDs:   []model.SlackUserID{"A", "B"},
			Text:           "see attached",
			AttachmentsDir: dir,
		})
		gt.Number(t, report.Sent).Equal(1)
		gt.Number(t, report.Failed).Equal(1)
		gt.Value(t, report.Failures[0].RecipientID).Equal(model.SlackUserID("B"))
		gt.String(t, report.Failures[0].Error).Contains("Attachment not found")
		gt.String(t, report.Failures[0].Error).Contains("Bob.pdf")

		gt.Value(t, slack.opened).Equal([]model.SlackUserID{"A"})
		gt.Bool(t, events.has("attachment_missing")).True()
	})
}

func TestDispatchUseCase_ChooseAttachmentsDir(t *testing.T) {
	ctx := context.Background()
	uc := usecase.NewDispatchUseCase(testRoster, newMockSlackService())

	t.Run("counts PDFs", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"a.pdf", "b.PDF", "notes.txt"} {
			gt.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600)).Required()
		}
		gt.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o700)).Required()

		got, err := uc.ChooseAttachmentsDir(ctx, dir)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Path).Equal(dir)
		gt.Number(t, got.PDFCount).Equal(2)
	})

	t.Run("rejects missing directory", func(t *testing.T) {
		_, err := uc.ChooseAttachmentsDir(ctx, filepath.Join(t.TempDir(), "missing"))
		gt.Error(t, err).Is(usecase.ErrAttachmentsDirInvalid)
	})

	t.Run("rejects a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x.pdf")
		gt.NoError(t, os.WriteFile(path, nil, 0o600)).Required()
		_, err := uc.ChooseAttachmentsDir(ctx, path)
		gt.Error(t, err).Is(usecase.ErrAttachmentsDirInvalid)
	})
}

func TestValidateSendRequest(t *testing.T) {
	gt.Error(t, usecase.ValidateSendRequest(model.SendRequest{Text: "hi"})).Is(usecase.ErrNoRecipients)
	gt.Error(t, usecase.ValidateSendRequest(model.SendRequest{
		RecipientIDs: []model.SlackUserID{"A"},
		Text:         "  ",
	})).Is(usecase.ErrEmptyMessage)
	gt.NoError(t, usecase.ValidateSendRequest(model.SendRequest{
		RecipientIDs:   []model.SlackUserID{"A"},
		AttachmentsDir: "/tmp",
	}))
}

func TestGreetingAndAttachmentPath(t *testing.T) {
	entry := model.RosterEntry{ID: "U1", SlackName: "Jane"}
	gt.Value(t, usecase.Greeting(entry)).Equal("Hello Jane,\n\n")
	gt.Value(t, usecase.AttachmentPath("/pdfs", entry)).Equal(filepath.Join("/pdfs", "Jane.pdf"))

	entry.GlatsName = "Jane D."
	gt.Value(t, usecase.Greeting(entry)).Equal("Hello Jane D.,\n\n")
	gt.Value(t, usecase.AttachmentPath("/pdfs", entry)).Equal(filepath.Join("/pdfs", "Jane D..pdf"))
}
