package slack

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/slack-go/slack"
)

const (
	// DefaultPageSize is the users.list page size
	DefaultPageSize = 200
	// DefaultTimeout bounds each API request
	DefaultTimeout = 30 * time.Second
)

// client implements Service interface
type client struct {
	api      *slack.Client
	pageSize int
}

type config struct {
	apiURL     string
	httpClient *http.Client
	pageSize   int
}

// Option is a functional option for client configuration
type Option func(*config)

// WithAPIURL points the client at another Slack API endpoint. The URL must
// end with a slash.
func WithAPIURL(url string) Option {
	return func(c *config) {
		c.apiURL = url
	}
}

// WithHTTPClient replaces the HTTP client used for API requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithPageSize sets the users.list page size
func WithPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a new Slack service with the provided bot token. The
// underlying client never retries: a rate limit surfaces as an error.
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	cfg := &config{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	slackOpts := []slack.Option{slack.OptionHTTPClient(cfg.httpClient)}
	if cfg.apiURL != "" {
		slackOpts = append(slackOpts, slack.OptionAPIURL(cfg.apiURL))
	}

	return &client{
		api:      slack.New(token, slackOpts...),
		pageSize: cfg.pageSize,
	}, nil
}

// ListMembers retrieves the workspace directory across all users.list pages
func (c *client) ListMembers(ctx context.Context, filter model.CohortFilter) ([]model.RosterEntry, error) {
	var entries []model.RosterEntry

	page := c.api.GetUsersPaginated(slack.GetUsersOptionLimit(c.pageSize))
	for pages := 0; ; pages++ {
		var err error
		page, err = page.Next(ctx)
		if page.Done(err) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list users",
				goerr.V("pages", pages),
				goerr.V("fetched", len(entries)))
		}

		for _, u := range page.Users {
			if entry, ok := toRosterEntry(u, filter); ok {
				entries = append(entries, entry)
			}
		}
	}

	return entries, nil
}

// toRosterEntry maps a directory member, reporting false for members that
// must not be messaged
func toRosterEntry(u slack.User, filter model.CohortFilter) (model.RosterEntry, bool) {
	id := model.SlackUserID(u.ID)
	if id == "" || u.Deleted || u.IsBot || id == model.SlackbotID {
		return model.RosterEntry{}, false
	}

	name := firstNonEmpty(u.Profile.DisplayName, u.Profile.RealName, u.Name)
	if !filter.Allows(id, name) {
		return model.RosterEntry{}, false
	}

	return model.RosterEntry{
		ID:        id,
		Username:  u.Name,
		SlackName: name,
		Email:     u.Profile.Email,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OpenDirectConversation opens the DM channel with a user
func (c *client) OpenDirectConversation(ctx context.Context, userID model.SlackUserID) (string, error) {
	channel, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{string(userID)},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to open conversation", goerr.V("user_id", userID))
	}
	if channel == nil || channel.ID == "" {
		return "", goerr.Wrap(ErrNoChannel, "conversation opened without channel", goerr.V("user_id", userID))
	}
	return channel.ID, nil
}

// PostMessage posts plain text to a channel
func (c *client) PostMessage(ctx context.Context, channelID string, text string) error {
	if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to post message", goerr.V("channel_id", channelID))
	}
	return nil
}

// UploadFile uploads a file to a channel with comment as its message. It
// uses the external upload flow: files.getUploadURLExternal, the upload
// itself, then files.completeUploadExternal.
func (c *client) UploadFile(ctx context.Context, channelID string, filePath string, comment string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return goerr.Wrap(err, "failed to stat attachment", goerr.V("path", filePath))
	}

	_, err = c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:           filePath,
		FileSize:       int(info.Size()),
		Filename:       filepath.Base(filePath),
		InitialComment: comment,
		Channel:        channelID,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upload file",
			goerr.V("channel_id", channelID),
			goerr.V("path", filePath))
	}
	return nil
}
