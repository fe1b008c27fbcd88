package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/doppel-lab/keryx/pkg/domain/model"
)

type summaryDoc struct {
	ID               model.SummaryID      `firestore:"ID"`
	ConversationID   model.ConversationID `firestore:"ConversationID"`
	Content          string               `firestore:"Content"`
	MessagesIncluded int                  `firestore:"MessagesIncluded"`
	FromSeq          int64                `firestore:"FromSeq"`
	ToSeq            int64                `firestore:"ToSeq"`
	CreatedAt        time.Time            `firestore:"CreatedAt"`
}

func fromSummaryDoc(d *summaryDoc) *model.ConversationSummary {
	return &model.ConversationSummary{
		ID:               d.ID,
		ConversationID:   d.ConversationID,
		Content:          d.Content,
		MessagesIncluded: d.MessagesIncluded,
		FromSeq:          d.FromSeq,
		ToSeq:            d.ToSeq,
		CreatedAt:        d.CreatedAt,
	}
}

type summaryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *summaryRepository) conversationsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_conversations"
	}
	return "conversations"
}

func (r *summaryRepository) summariesCollection(convID model.ConversationID) *firestore.CollectionRef {
	return r.client.Collection(r.conversationsCollection()).Doc(string(convID)).Collection("summaries")
}

func (r *summaryRepository) Put(ctx context.Context, summary *model.ConversationSummary) error {
	if summary.ID == "" {
		summary.ID = model.NewSummaryID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	doc := &summaryDoc{
		ID:               summary.ID,
		ConversationID:   summary.ConversationID,
		Content:          summary.Content,
		MessagesIncluded: summary.MessagesIncluded,
		FromSeq:          summary.FromSeq,
		ToSeq:            summary.ToSeq,
		CreatedAt:        summary.CreatedAt,
	}
	docRef := r.summariesCollection(summary.ConversationID).Doc(string(summary.ID))
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put summary", goerr.V("id", summary.ID))
	}
	return nil
}

func (r *summaryRepository) ListByConversation(ctx context.Context, convID model.ConversationID) ([]*model.ConversationSummary, error) {
	iter := r.summariesCollection(convID).
		OrderBy("FromSeq", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	summaries := make([]*model.ConversationSummary, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate summaries", goerr.V("conversationID", convID))
		}

		var d summaryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal summary")
		}
		summaries = append(summaries, fromSummaryDoc(&d))
	}

	return summaries, nil
}

func (r *summaryRepository) LastToSeq(ctx context.Context, convID model.ConversationID) (int64, error) {
	iter := r.summariesCollection(convID).
		OrderBy("ToSeq", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get last summary", goerr.V("conversationID", convID))
	}

	var d summaryDoc
	if err := doc.DataTo(&d); err != nil {
		return 0, goerr.Wrap(err, "failed to unmarshal summary")
	}
	return d.ToSeq, nil
}
