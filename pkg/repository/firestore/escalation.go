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

type escalationDoc struct {
	ID             model.EscalationID     `firestore:"ID"`
	AgentID        types.AgentID          `firestore:"AgentID"`
	ConversationID model.ConversationID   `firestore:"ConversationID"`
	MessageID      model.MessageID        `firestore:"MessageID"`
	Question       string                 `firestore:"Question"`
	Status         types.EscalationStatus `firestore:"Status"`
	Answer         string                 `firestore:"Answer"`
	CreatedAt      time.Time              `firestore:"CreatedAt"`
	AnsweredAt     time.Time              `firestore:"AnsweredAt"`
}

func fromEscalationDoc(d *escalationDoc) *model.Escalation {
	return &model.Escalation{
		ID:             d.ID,
		AgentID:        d.AgentID,
		ConversationID: d.ConversationID,
		MessageID:      d.MessageID,
		Question:       d.Question,
		Status:         d.Status,
		Answer:         d.Answer,
		CreatedAt:      d.CreatedAt,
		AnsweredAt:     d.AnsweredAt,
	}
}

type escalationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *escalationRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *escalationRepository) escalationsCollection(agentID types.AgentID) *firestore.CollectionRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("escalations")
}

func (r *escalationRepository) Put(ctx context.Context, esc *model.Escalation) error {
	if esc.ID == "" {
		esc.ID = model.NewEscalationID()
	}
	if esc.Status == "" {
		esc.Status = types.EscalationPending
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}

	doc := &escalationDoc{
		ID:             esc.ID,
		AgentID:        esc.AgentID,
		ConversationID: esc.ConversationID,
		MessageID:      esc.MessageID,
		Question:       esc.Question,
		Status:         esc.Status,
		Answer:         esc.Answer,
		CreatedAt:      esc.CreatedAt,
		AnsweredAt:     esc.AnsweredAt,
	}
	docRef := r.escalationsCollection(esc.AgentID).Doc(string(esc.ID))
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put escalation", goerr.V("id", esc.ID))
	}
	return nil
}

func (r *escalationRepository) Get(ctx context.Context, agentID types.AgentID, id model.EscalationID) (*model.Escalation, error) {
	doc, err := r.escalationsCollection(agentID).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get escalation", goerr.V("id", id))
	}

	var d escalationDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal escalation", goerr.V("id", id))
	}
	return fromEscalationDoc(&d), nil
}

func (r *escalationRepository) ListByAgent(ctx context.Context, agentID types.AgentID, status types.EscalationStatus) ([]*model.Escalation, error) {
	query := r.escalationsCollection(agentID).Query
	if status != "" {
		query = query.Where("Status", "==", status.String())
	}
	query = query.OrderBy("CreatedAt", firestore.Desc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	escalations := make([]*model.Escalation, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate escalations", goerr.V("agentID", agentID))
		}

		var d escalationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal escalation")
		}
		escalations = append(escalations, fromEscalationDoc(&d))
	}

	return escalations, nil
}

func (r *escalationRepository) Update(ctx context.Context, esc *model.Escalation) error {
	docRef := r.escalationsCollection(esc.AgentID).Doc(string(esc.ID))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "Status", Value: esc.Status.String()},
		{Path: "Answer", Value: esc.Answer},
		{Path: "AnsweredAt", Value: esc.AnsweredAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", esc.ID))
		}
		return goerr.Wrap(err, "failed to update escalation", goerr.V("id", esc.ID))
	}
	return nil
}
