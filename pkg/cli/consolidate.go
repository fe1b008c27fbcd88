package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/doppel-lab/keryx/pkg/cli/config"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/doppel-lab/keryx/pkg/utils/safe"
)

func cmdConsolidate() *cli.Command {
	var agentID string
	var escalationTTL time.Duration
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Usage:       "Agent ID to consolidate (empty processes every agent)",
			Destination: &agentID,
		},
		&cli.DurationFlag{
			Name:        "escalation-ttl",
			Usage:       "Age after which pending escalations expire (0 skips expiry)",
			Value:       72 * time.Hour,
			Destination: &escalationTTL,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "consolidate",
		Usage: "Run memory consolidation and escalation expiry as a batch",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			// Initialize repository
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			// Consolidation works on stored embeddings, so no LLM client
			// is needed here
			uc := usecase.New(repo, nil)

			var agents []*model.Agent
			if agentID != "" {
				agent, err := uc.Agent.Get(ctx, types.AgentID(agentID))
				if err != nil {
					return goerr.Wrap(err, "failed to load agent", goerr.V("agent_id", agentID))
				}
				agents = []*model.Agent{agent}
			} else {
				agents, err = uc.Agent.List(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to list agents")
				}
			}

			merged := 0
			expired := 0
			for _, agent := range agents {
				n, err := uc.Consolidate.Consolidate(ctx, agent.ID)
				if err != nil {
					logger.Error("Memory consolidation failed",
						"agent_id", agent.ID, "error", err.Error())
					continue
				}
				merged += n

				if escalationTTL > 0 {
					n, err := uc.Escalation.ExpireStale(ctx, agent.ID, escalationTTL)
					if err != nil {
						logger.Error("Escalation expiry failed",
							"agent_id", agent.ID, "error", err.Error())
						continue
					}
					expired += n
				}
			}

			logger.Info("Consolidation completed",
				"agents", len(agents),
				"merged", merged,
				"expired", expired)
			return nil
		},
	}
}
