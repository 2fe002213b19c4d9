package config

import (
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

// Slack holds Slack flags that override the operator config
type Slack struct {
	botToken string
	apiURL   string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (overrides the config file)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("BULKDM_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-api-url",
			Usage:       "Slack Web API base URL",
			Category:    "Slack",
			Hidden:      true,
			Destination: &x.apiURL,
			Sources:     cli.EnvVars("BULKDM_SLACK_API_URL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.String("api-url", x.apiURL),
	)
}

// BotToken returns the flag token if set, else the one from cfg
func (x *Slack) BotToken(cfg *model.AppConfig) string {
	if x.botToken != "" {
		return x.botToken
	}
	if cfg == nil {
		return ""
	}
	return cfg.SlackBotToken
}

// Configure creates the Slack service
func (x *Slack) Configure(cfg *model.AppConfig) (slack.Service, error) {
	token := x.BotToken(cfg)
	if token == "" {
		return nil, goerr.Wrap(ErrMissingToken, "no slack bot token")
	}

	var opts []slack.Option
	if x.apiURL != "" {
		apiURL := x.apiURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.WithAPIURL(apiURL))
	}

	svc, err := slack.New(token, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack service")
	}
	return svc, nil
}
