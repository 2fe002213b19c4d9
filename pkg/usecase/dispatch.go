package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/service/eventlog"
	slacksvc "github.com/secmon-lab/bulkdm/pkg/service/slack"
	"github.com/secmon-lab/bulkdm/pkg/utils/errutil"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"golang.org/x/time/rate"
)

const (
	msgNotInCache  = "User not found in cache (sync may be stale)."
	msgSendUnknown = "Unknown error sending DM."
	msgCrashed     = "send_dms handler crashed unexpectedly."
)

// RosterSnapshot is the read-only view of the roster the dispatcher needs
type RosterSnapshot interface {
	Cached() []model.RosterEntry
}

// DispatchUseCase sends one direct message per recipient, sequentially.
// A failure for one recipient is recorded and the batch continues.
type DispatchUseCase struct {
	roster  RosterSnapshot
	slack   slacksvc.Service
	events  interfaces.EventLog
	limiter *rate.Limiter
	dryRun  bool
	newID   func() string
}

// DispatchOption configures DispatchUseCase
type DispatchOption func(*DispatchUseCase)

// WithSendEventLog sets the operator-facing event log
func WithSendEventLog(events interfaces.EventLog) DispatchOption {
	return func(uc *DispatchUseCase) {
		uc.events = events
	}
}

// WithSendRate paces sends to at most perSecond recipients per second.
// Zero or negative means unlimited.
func WithSendRate(perSecond float64) DispatchOption {
	return func(uc *DispatchUseCase) {
		if perSecond <= 0 {
			uc.limiter = nil
			return
		}
		uc.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithDryRun resolves recipients and attachments without calling Slack
func WithDryRun(dryRun bool) DispatchOption {
	return func(uc *DispatchUseCase) {
		uc.dryRun = dryRun
	}
}

// WithBatchIDGenerator overrides the uuid-based batch id
func WithBatchIDGenerator(fn func() string) DispatchOption {
	return func(uc *DispatchUseCase) {
		uc.newID = fn
	}
}

// NewDispatchUseCase creates a dispatcher reading recipients from roster
func NewDispatchUseCase(roster RosterSnapshot, slackService slacksvc.Service, opts ...DispatchOption) *DispatchUseCase {
	uc := &DispatchUseCase{
		roster: roster,
		slack:  slackService,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.events == nil {
		uc.events = (*eventlog.Logger)(nil)
	}
	return uc
}

// ValidateSendRequest rejects requests that cannot produce any message
func ValidateSendRequest(req model.SendRequest) error {
	if len(req.RecipientIDs) == 0 {
		return goerr.Wrap(ErrNoRecipients, "no recipients selected")
	}
	if strings.TrimSpace(req.Text) == "" && req.AttachmentsDir == "" {
		return goerr.Wrap(ErrEmptyMessage, "message text is required without attachments")
	}
	return nil
}

// SendTo delivers req to every recipient in order and reports per-recipient
// outcomes. It never returns an error: every failure is part of the report.
func (uc *DispatchUseCase) SendTo(ctx context.Context, req model.SendRequest) (report *model.SendReport) {
	report = &model.SendReport{DryRun: uc.dryRun}
	logger := logging.From(ctx)

	// recipients before done have an outcome recorded
	done := 0
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		msg := fmt.Sprint(r)
		if msg == "" {
			msg = msgCrashed
		}
		_ = errutil.Handle(ctx, goerr.New("send batch crashed",
			goerr.V(BatchIDKey, report.BatchID),
			goerr.V("panic", msg),
			goerr.V("remaining", len(req.RecipientIDs)-done)), "send batch crashed")
		uc.events.Error(ctx, "send_dms_handler_crashed", map[string]any{
			"batchId": report.BatchID,
			"error":   msg,
		})
		for _, id := range req.RecipientIDs[done:] {
			report.Fail(id, msg)
		}
		report.OK = false
	}()

	report.BatchID = uc.newID()
	report.LogPath = uc.events.Path()
	logger = logger.With("batch_id", report.BatchID)

	uc.events.Info(ctx, "send_dms_handler_invoked", map[string]any{
		"batchId":        report.BatchID,
		"userCount":      len(req.RecipientIDs),
		"attachmentsDir": req.AttachmentsDir,
		"dryRun":         uc.dryRun,
	})

	index := make(map[model.SlackUserID]model.RosterEntry)
	for _, entry := range uc.roster.Cached() {
		index[entry.ID] = entry
	}

	for _, id := range req.RecipientIDs {
		if err := uc.sendOne(ctx, report.BatchID, index, id, req); err != nil {
			msg := err.Error()
			logger.Warn("failed to send DM", "user_id", id, "error", msg)
			report.Fail(id, msg)
		} else {
			report.Sent++
		}
		done++
	}

	report.OK = report.Failed == 0
	uc.events.Info(ctx, "send_dms_finished", map[string]any{
		"batchId": report.BatchID,
		"ok":      report.OK,
		"sent":    report.Sent,
		"failed":  report.Failed,
	})
	logger.Info("send batch finished", "sent", report.Sent, "failed", report.Failed)

	return report
}

// sendError is a per-recipient failure carrying the operator-facing message
type sendError struct {
	msg string
}

func (x *sendError) Error() string { return x.msg }

func (uc *DispatchUseCase) sendOne(ctx context.Context, batchID string, index map[model.SlackUserID]model.RosterEntry, id model.SlackUserID, req model.SendRequest) error {
	entry, ok := index[id]
	if !ok {
		uc.events.Error(ctx, "send_dm_failed", map[string]any{
			"batchId": batchID,
			"userId":  id,
			"error":   msgNotInCache,
		})
		return &sendError{msg: msgNotInCache}
	}

	var filePath string
	if req.AttachmentsDir != "" {
		expected := AttachmentPath(req.AttachmentsDir, entry)
		if !fileExists(expected) {
			uc.events.Error(ctx, "attachment_missing", map[string]any{
				"batchId":  batchID,
				"userId":   id,
				"expected": expected,
			})
			return &sendError{msg: "Attachment not found: " + expected}
		}
		filePath = expected
	}

	if err := uc.deliver(ctx, entry, req.Text, filePath); err != nil {
		msg := slacksvc.ClassifyError(err).Message
		if msg == "" {
			msg = msgSendUnknown
		}
		uc.events.Error(ctx, "send_dm_failed", map[string]any{
			"batchId": batchID,
			"userId":  id,
			"error":   msg,
		})
		return &sendError{msg: msg}
	}

	data := map[string]any{
		"batchId":  batchID,
		"userId":   id,
		"filePath": nil,
	}
	if filePath != "" {
		data["filePath"] = filePath
	}
	uc.events.Info(ctx, "send_dm_success", data)
	return nil
}

func (uc *DispatchUseCase) deliver(ctx context.Context, entry model.RosterEntry, body string, filePath string) error {
	if uc.limiter != nil {
		if err := uc.limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "send pacing interrupted", goerr.V(UserIDKey, entry.ID))
		}
	}

	if uc.dryRun {
		logging.From(ctx).Info("dry run, skipping DM", "user_id", entry.ID, "file", filePath)
		return nil
	}

	channelID, err := uc.slack.OpenDirectConversation(ctx, entry.ID)
	if err != nil {
		return err
	}

	text := Greeting(entry) + body
	if filePath != "" {
		return uc.slack.UploadFile(ctx, channelID, filePath, text)
	}
	return uc.slack.PostMessage(ctx, channelID, text)
}

// Greeting is the line prepended to every message
func Greeting(entry model.RosterEntry) string {
	return "Hello " + entry.Label() + ",\n\n"
}

// AttachmentPath is where the attachment for entry is expected under dir
func AttachmentPath(dir string, entry model.RosterEntry) string {
	return filepath.Join(dir, entry.Label()+".pdf")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ChooseAttachmentsDir validates an operator-supplied attachments directory
// and counts the PDFs in it
func (uc *DispatchUseCase) ChooseAttachmentsDir(ctx context.Context, dir string) (*model.AttachmentsDir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve attachments directory", goerr.V(DirPathKey, dir))
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrAttachmentsDirInvalid, "attachments directory does not exist", goerr.V(DirPathKey, abs))
		}
		return nil, goerr.Wrap(err, "failed to stat attachments directory", goerr.V(DirPathKey, abs))
	}
	if !info.IsDir() {
		return nil, goerr.Wrap(ErrAttachmentsDirInvalid, "attachments path is not a directory", goerr.V(DirPathKey, abs))
	}

	files, err := os.ReadDir(abs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read attachments directory", goerr.V(DirPathKey, abs))
	}

	result := &model.AttachmentsDir{Path: abs}
	for _, f := range files {
		if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ".pdf") {
			result.PDFCount++
		}
	}

	logging.From(ctx).Debug("attachments directory selected", "path", abs, "pdf_count", result.PDFCount)
	return result, nil
}
