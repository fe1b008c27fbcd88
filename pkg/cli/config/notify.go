package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/doppel-lab/keryx/pkg/service/notify"
)

// Notify holds CLI flags for owner escalation notification via Slack
type Notify struct {
	slackBotToken  string
	slackChannelID string
}

// Flags returns CLI flags for notification configuration
func (n *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot token for escalation notifications",
			Sources:     cli.EnvVars("KERYX_SLACK_BOT_TOKEN"),
			Destination: &n.slackBotToken,
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel ID that receives escalation notifications",
			Sources:     cli.EnvVars("KERYX_SLACK_CHANNEL_ID"),
			Destination: &n.slackChannelID,
		},
	}
}

// LogValue renders the notification configuration without exposing the token
func (n Notify) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", n.slackBotToken != ""),
		slog.String("channel_id", n.slackChannelID),
	)
}

// Configure creates the Slack notification service. With neither flag set
// it returns nil and escalation tickets are created silently.
func (n *Notify) Configure() (*notify.Service, error) {
	if n.slackBotToken == "" && n.slackChannelID == "" {
		return nil, nil
	}
	if n.slackBotToken == "" || n.slackChannelID == "" {
		return nil, goerr.New("slack-bot-token and slack-channel-id must be set together")
	}

	svc, err := notify.New(n.slackBotToken, n.slackChannelID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack notification service")
	}
	return svc, nil
}
