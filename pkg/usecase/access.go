package usecase

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// AccessUseCase resolves the maximum knowledge layer a viewer may read
// for a given agent
type AccessUseCase struct {
	repo interfaces.Repository
}

// NewAccessUseCase creates a new AccessUseCase instance
func NewAccessUseCase(repo interfaces.Repository) *AccessUseCase {
	return &AccessUseCase{repo: repo}
}

// Resolve returns the viewer's maximum readable layer. The owner always
// reads intimate; an explicit grant raises a viewer above public; every
// other viewer reads public. An unknown agent is an error, never a
// fallback to public.
func (uc *AccessUseCase) Resolve(ctx context.Context, viewerID types.ViewerID, agentID types.AgentID) (types.KnowledgeLayer, error) {
	agent, err := uc.repo.Agent().Get(ctx, agentID)
	if err != nil {
		return "", goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}

	return uc.ResolveForAgent(ctx, viewerID, agent)
}

// ResolveForAgent resolves the layer when the agent is already loaded
func (uc *AccessUseCase) ResolveForAgent(ctx context.Context, viewerID types.ViewerID, agent *model.Agent) (types.KnowledgeLayer, error) {
	if agent.OwnerID != "" && viewerID == agent.OwnerID {
		return types.LayerIntimate, nil
	}

	grant, err := uc.repo.Grant().Get(ctx, agent.ID, viewerID)
	if err != nil {
		// No grant stored, the viewer reads the public layer
		return types.LayerPublic, nil
	}
	if !grant.Layer.IsValid() {
		return types.LayerPublic, nil
	}

	return grant.Layer, nil
}

// SetGrant stores or replaces a viewer's maximum readable layer
func (uc *AccessUseCase) SetGrant(ctx context.Context, agentID types.AgentID, viewerID types.ViewerID, layer types.KnowledgeLayer) (*model.AccessGrant, error) {
	if _, err := uc.repo.Agent().Get(ctx, agentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	if !layer.IsValid() {
		return nil, goerr.New("invalid knowledge layer", goerr.V("layer", layer))
	}

	grant := &model.AccessGrant{
		AgentID:  agentID,
		ViewerID: viewerID,
		Layer:    layer,
	}
	if err := uc.repo.Grant().Put(ctx, grant); err != nil {
		return nil, goerr.Wrap(err, "failed to store grant",
			goerr.V(AgentIDKey, agentID), goerr.V(ViewerIDKey, viewerID))
	}

	return grant, nil
}
