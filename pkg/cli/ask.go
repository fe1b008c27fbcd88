package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/doppel-lab/keryx/pkg/cli/config"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/doppel-lab/keryx/pkg/service/summary"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/safe"
)

func cmdAsk() *cli.Command {
	var agentID string
	var viewerID string
	var tier string
	var conversationID string
	var repoCfg config.Repository
	var geminiCfg config.Gemini

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID that answers the message (required)",
			Required:    true,
			Sources:     cli.EnvVars("KERYX_ASK_AGENT"),
			Destination: &agentID,
		},
		&cli.StringFlag{
			Name:        "viewer",
			Usage:       "Viewer ID to send as (empty for anonymous)",
			Sources:     cli.EnvVars("KERYX_ASK_VIEWER"),
			Destination: &viewerID,
		},
		&cli.StringFlag{
			Name:        "tier",
			Usage:       "Viewer tier (free, follower, paid)",
			Value:       "free",
			Sources:     cli.EnvVars("KERYX_ASK_TIER"),
			Destination: &tier,
		},
		&cli.StringFlag{
			Name:        "conversation",
			Usage:       "Conversation ID to continue (empty starts a new one)",
			Destination: &conversationID,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one message through an agent's answering pipeline",
		ArgsUsage: "<message text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return goerr.New("message text is required")
			}

			viewerTier := types.ViewerTier(tier).Normalize()
			if !viewerTier.IsValid() {
				return goerr.New("invalid viewer tier", goerr.V("tier", tier))
			}

			// Initialize repository
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Gemini client")
			}

			ucOpts := []usecase.Option{}
			if llmClient != nil {
				recallSvc, err := recall.New(llmClient)
				if err != nil {
					return goerr.Wrap(err, "failed to initialize recall service")
				}
				summarySvc, err := summary.New(llmClient)
				if err != nil {
					return goerr.Wrap(err, "failed to initialize summary service")
				}
				ucOpts = append(ucOpts,
					usecase.WithRecallService(recallSvc),
					usecase.WithSummaryService(summarySvc),
				)
			}

			uc := usecase.New(repo, llmClient, ucOpts...)

			agent, err := uc.Agent.Get(ctx, types.AgentID(agentID))
			if err != nil {
				return goerr.Wrap(err, "failed to load agent", goerr.V("agent_id", agentID))
			}

			viewer := &model.Viewer{
				ID:   types.ViewerID(viewerID),
				Tier: viewerTier,
			}

			decision, err := uc.Answer.HandleMessage(ctx, agent.ID, viewer, model.ConversationID(conversationID), text)
			if err != nil {
				return goerr.Wrap(err, "failed to handle message")
			}

			name := color.New(color.FgCyan, color.Bold)
			meta := color.New(color.FgHiBlack)

			name.Printf("%s: ", agent.Name)
			fmt.Println(decision.Reply)
			meta.Printf("outcome=%s confidence=%d novelty=%d conversation=%s\n",
				decision.Outcome, decision.Confidence, decision.Novelty, decision.ConversationID)
			if decision.EscalationID != "" {
				meta.Printf("escalation=%s\n", decision.EscalationID)
			}

			return nil
		},
	}
}
