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

type qualityDoc struct {
	MessageID      model.MessageID      `firestore:"MessageID"`
	ConversationID model.ConversationID `firestore:"ConversationID"`
	AgentID        types.AgentID        `firestore:"AgentID"`
	Outcome        types.Outcome        `firestore:"Outcome"`
	Confidence     int                  `firestore:"Confidence"`
	Novelty        int                  `firestore:"Novelty"`
	Relevance      int                  `firestore:"Relevance"`
	Engagement     int                  `firestore:"Engagement"`
	Grounding      int                  `firestore:"Grounding"`
	Issues         []string             `firestore:"Issues"`
	CreatedAt      time.Time            `firestore:"CreatedAt"`
}

func fromQualityDoc(d *qualityDoc) *model.QualityRecord {
	return &model.QualityRecord{
		MessageID:      d.MessageID,
		ConversationID: d.ConversationID,
		AgentID:        d.AgentID,
		Outcome:        d.Outcome,
		Confidence:     d.Confidence,
		Novelty:        d.Novelty,
		Relevance:      d.Relevance,
		Engagement:     d.Engagement,
		Grounding:      d.Grounding,
		Issues:         d.Issues,
		CreatedAt:      d.CreatedAt,
	}
}

type qualityRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *qualityRepository) recordsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_quality_records"
	}
	return "quality_records"
}

func (r *qualityRepository) Put(ctx context.Context, rec *model.QualityRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	doc := &qualityDoc{
		MessageID:      rec.MessageID,
		ConversationID: rec.ConversationID,
		AgentID:        rec.AgentID,
		Outcome:        rec.Outcome,
		Confidence:     rec.Confidence,
		Novelty:        rec.Novelty,
		Relevance:      rec.Relevance,
		Engagement:     rec.Engagement,
		Grounding:      rec.Grounding,
		Issues:         rec.Issues,
		CreatedAt:      rec.CreatedAt,
	}
	docRef := r.client.Collection(r.recordsCollection()).Doc(string(rec.MessageID))
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put quality record", goerr.V("messageID", rec.MessageID))
	}
	return nil
}

func (r *qualityRepository) Get(ctx context.Context, msgID model.MessageID) (*model.QualityRecord, error) {
	doc, err := r.client.Collection(r.recordsCollection()).Doc(string(msgID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "quality record not found", goerr.V("messageID", msgID))
		}
		return nil, goerr.Wrap(err, "failed to get quality record", goerr.V("messageID", msgID))
	}

	var d qualityDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal quality record", goerr.V("messageID", msgID))
	}
	return fromQualityDoc(&d), nil
}

func (r *qualityRepository) ListByAgentSince(ctx context.Context, agentID types.AgentID, since time.Time) ([]*model.QualityRecord, error) {
	iter := r.client.Collection(r.recordsCollection()).
		Where("AgentID", "==", agentID.String()).
		Where("CreatedAt", ">=", since).
		OrderBy("CreatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	records := make([]*model.QualityRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate quality records", goerr.V("agentID", agentID))
		}

		var d qualityDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal quality record")
		}
		records = append(records, fromQualityDoc(&d))
	}

	return records, nil
}
