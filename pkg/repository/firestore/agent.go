package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// agentDoc is the Firestore document representation of model.Agent.
type agentDoc struct {
	ID        types.AgentID  `firestore:"ID"`
	OwnerID   types.ViewerID `firestore:"OwnerID"`
	Name      string         `firestore:"Name"`
	Persona   string         `firestore:"Persona"`
	CreatedAt time.Time      `firestore:"CreatedAt"`
	UpdatedAt time.Time      `firestore:"UpdatedAt"`
}

type agentConfigDoc struct {
	AgentID              types.AgentID `firestore:"AgentID"`
	AnswerEnabled        bool          `firestore:"AnswerEnabled"`
	ConfidenceThreshold  int           `firestore:"ConfidenceThreshold"`
	ReuseThreshold       float64       `firestore:"ReuseThreshold"`
	MergeThreshold       float64       `firestore:"MergeThreshold"`
	ClarificationEnabled bool          `firestore:"ClarificationEnabled"`
	EscalationEnabled    bool          `firestore:"EscalationEnabled"`
	EscalationDailyCap   int           `firestore:"EscalationDailyCap"`
	EscalationWeeklyCap  int           `firestore:"EscalationWeeklyCap"`
	BlockedTopics        []string      `firestore:"BlockedTopics"`
	AllowedTiers         []string      `firestore:"AllowedTiers"`
	UpdatedAt            time.Time     `firestore:"UpdatedAt"`
}

func toAgentConfigDoc(c *model.AgentConfig) *agentConfigDoc {
	doc := &agentConfigDoc{
		AgentID:              c.AgentID,
		AnswerEnabled:        c.AnswerEnabled,
		ConfidenceThreshold:  c.ConfidenceThreshold,
		ReuseThreshold:       c.ReuseThreshold,
		MergeThreshold:       c.MergeThreshold,
		ClarificationEnabled: c.ClarificationEnabled,
		EscalationEnabled:    c.EscalationEnabled,
		EscalationDailyCap:   c.EscalationDailyCap,
		EscalationWeeklyCap:  c.EscalationWeeklyCap,
		BlockedTopics:        c.BlockedTopics,
		UpdatedAt:            c.UpdatedAt,
	}
	for _, tier := range c.AllowedTiers {
		doc.AllowedTiers = append(doc.AllowedTiers, tier.String())
	}
	return doc
}

func fromAgentConfigDoc(d *agentConfigDoc) *model.AgentConfig {
	c := &model.AgentConfig{
		AgentID:              d.AgentID,
		AnswerEnabled:        d.AnswerEnabled,
		ConfidenceThreshold:  d.ConfidenceThreshold,
		ReuseThreshold:       d.ReuseThreshold,
		MergeThreshold:       d.MergeThreshold,
		ClarificationEnabled: d.ClarificationEnabled,
		EscalationEnabled:    d.EscalationEnabled,
		EscalationDailyCap:   d.EscalationDailyCap,
		EscalationWeeklyCap:  d.EscalationWeeklyCap,
		BlockedTopics:        d.BlockedTopics,
		UpdatedAt:            d.UpdatedAt,
	}
	for _, tier := range d.AllowedTiers {
		c.AllowedTiers = append(c.AllowedTiers, types.ViewerTier(tier))
	}
	return c
}

type agentRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *agentRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *agentRepository) configsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agent_configs"
	}
	return "agent_configs"
}

func (r *agentRepository) Put(ctx context.Context, agent *model.Agent) error {
	now := time.Now().UTC()
	doc := &agentDoc{
		ID:        agent.ID,
		OwnerID:   agent.OwnerID,
		Name:      agent.Name,
		Persona:   agent.Persona,
		CreatedAt: agent.CreatedAt,
		UpdatedAt: now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	docRef := r.client.Collection(r.agentsCollection()).Doc(agent.ID.String())
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put agent", goerr.V("id", agent.ID))
	}
	return nil
}

func (r *agentRepository) Get(ctx context.Context, id types.AgentID) (*model.Agent, error) {
	doc, err := r.client.Collection(r.agentsCollection()).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "agent not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get agent", goerr.V("id", id))
	}

	var d agentDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal agent", goerr.V("id", id))
	}

	return &model.Agent{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Persona:   d.Persona,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (r *agentRepository) List(ctx context.Context) ([]*model.Agent, error) {
	iter := r.client.Collection(r.agentsCollection()).
		OrderBy("ID", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	agents := make([]*model.Agent, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate agents")
		}

		var d agentDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal agent")
		}

		agents = append(agents, &model.Agent{
			ID:        d.ID,
			OwnerID:   d.OwnerID,
			Name:      d.Name,
			Persona:   d.Persona,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}

	return agents, nil
}

func (r *agentRepository) GetConfig(ctx context.Context, id types.AgentID) (*model.AgentConfig, error) {
	doc, err := r.client.Collection(r.configsCollection()).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "agent config not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get agent config", goerr.V("id", id))
	}

	var d agentConfigDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal agent config", goerr.V("id", id))
	}

	return fromAgentConfigDoc(&d), nil
}

func (r *agentRepository) PutConfig(ctx context.Context, config *model.AgentConfig) error {
	doc := toAgentConfigDoc(config)
	doc.UpdatedAt = time.Now().UTC()

	docRef := r.client.Collection(r.configsCollection()).Doc(config.AgentID.String())
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put agent config", goerr.V("id", config.AgentID))
	}
	return nil
}
