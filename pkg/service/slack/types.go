package slack

import (
	"context"

	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// Service provides the Slack API surface used by the roster sync and the
// bulk dispatcher. Errors are returned as-is from the API; use
// ClassifyError to tell rate limits from other failures.
type Service interface {
	// ListMembers walks users.list page by page and returns every member
	// that is not deleted, not a bot, not Slackbot, and passes filter.
	// Members keep page-arrival order.
	ListMembers(ctx context.Context, filter model.CohortFilter) ([]model.RosterEntry, error)

	// OpenDirectConversation opens (or reuses) the DM channel with a user
	// and returns its channel ID
	OpenDirectConversation(ctx context.Context, userID model.SlackUserID) (string, error)

	// PostMessage posts plain text to a channel
	PostMessage(ctx context.Context, channelID string, text string) error

	// UploadFile uploads a local file to a channel with comment as the
	// accompanying message
	UploadFile(ctx context.Context, channelID string, filePath string, comment string) error
}
