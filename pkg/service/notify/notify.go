package notify

import (
	"context"
	"fmt"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// Service posts escalation tickets to the owner's Slack channel. A nil
// *Service is a silent no-op so callers do not branch on whether
// notification is configured.
type Service struct {
	api       *slack.Client
	channelID string
}

// New creates a new notify service with the provided bot token and channel
func New(token, channelID string) (*Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channelID == "" {
		return nil, goerr.New("Slack channel ID is required")
	}

	return &Service{
		api:       slack.New(token),
		channelID: channelID,
	}, nil
}

// NotifyEscalation posts a new escalation ticket to the owner's channel
func (x *Service) NotifyEscalation(ctx context.Context, agent *model.Agent, esc *model.Escalation) error {
	if x == nil || x.api == nil {
		return nil
	}

	fallback := fmt.Sprintf("Escalation for %s: %s", agent.Name, esc.Question)
	blocks := buildEscalationBlocks(agent, esc)

	_, _, err := x.api.PostMessageContext(ctx, x.channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallback, false),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post escalation notification",
			goerr.V("channel_id", x.channelID),
			goerr.V("escalation_id", esc.ID))
	}

	return nil
}

// buildEscalationBlocks constructs Block Kit blocks for an escalation notification
func buildEscalationBlocks(agent *model.Agent, esc *model.Escalation) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Escalation: "+agent.Name, true, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, esc.Question, false, false),
			nil, nil,
		),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("Ticket `%s` · conversation `%s`", esc.ID, esc.ConversationID),
				false, false),
		),
	}

	return blocks
}
