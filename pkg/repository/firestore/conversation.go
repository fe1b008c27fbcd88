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

// conversationDoc is the Firestore document representation of
// model.Conversation. LastSeq is the message sequence counter; it lives
// only in the document so that AppendMessage can assign sequence numbers
// inside a transaction.
type conversationDoc struct {
	ID            model.ConversationID `firestore:"ID"`
	AgentID       types.AgentID        `firestore:"AgentID"`
	ViewerID      types.ViewerID       `firestore:"ViewerID"`
	ViewerTier    types.ViewerTier     `firestore:"ViewerTier"`
	LastSeq       int64                `firestore:"LastSeq"`
	CreatedAt     time.Time            `firestore:"CreatedAt"`
	LastMessageAt time.Time            `firestore:"LastMessageAt"`
}

func fromConversationDoc(d *conversationDoc) *model.Conversation {
	return &model.Conversation{
		ID:            d.ID,
		AgentID:       d.AgentID,
		ViewerID:      d.ViewerID,
		ViewerTier:    d.ViewerTier,
		CreatedAt:     d.CreatedAt,
		LastMessageAt: d.LastMessageAt,
	}
}

type messageDoc struct {
	ID             model.MessageID      `firestore:"ID"`
	ConversationID model.ConversationID `firestore:"ConversationID"`
	Seq            int64                `firestore:"Seq"`
	Role           types.MessageRole    `firestore:"Role"`
	Text           string               `firestore:"Text"`
	CreatedAt      time.Time            `firestore:"CreatedAt"`
}

func fromMessageDoc(d *messageDoc) *model.Message {
	return &model.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Seq:            d.Seq,
		Role:           d.Role,
		Text:           d.Text,
		CreatedAt:      d.CreatedAt,
	}
}

type conversationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *conversationRepository) conversationsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_conversations"
	}
	return "conversations"
}

func (r *conversationRepository) conversationRef(id model.ConversationID) *firestore.DocumentRef {
	return r.client.Collection(r.conversationsCollection()).Doc(string(id))
}

func (r *conversationRepository) messagesCollection(id model.ConversationID) *firestore.CollectionRef {
	return r.conversationRef(id).Collection("messages")
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = model.NewConversationID()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}

	doc := &conversationDoc{
		ID:            conv.ID,
		AgentID:       conv.AgentID,
		ViewerID:      conv.ViewerID,
		ViewerTier:    conv.ViewerTier,
		LastSeq:       0,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	}
	if _, err := r.conversationRef(conv.ID).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to create conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	doc, err := r.conversationRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var d conversationDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal conversation", goerr.V("id", id))
	}
	return fromConversationDoc(&d), nil
}

func (r *conversationRepository) ListByAgent(ctx context.Context, agentID types.AgentID) ([]*model.Conversation, error) {
	iter := r.client.Collection(r.conversationsCollection()).
		Where("AgentID", "==", agentID.String()).
		OrderBy("LastMessageAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	convs := make([]*model.Conversation, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations", goerr.V("agentID", agentID))
		}

		var d conversationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation")
		}
		convs = append(convs, fromConversationDoc(&d))
	}

	return convs, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	convRef := r.conversationRef(msg.ConversationID)

	id := msg.ID
	if id == "" {
		id = model.NewMessageID()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var stored *model.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", msg.ConversationID))
			}
			return goerr.Wrap(err, "failed to get conversation", goerr.V("id", msg.ConversationID))
		}

		var d conversationDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal conversation")
		}

		seq := d.LastSeq + 1
		stored = &model.Message{
			ID:             id,
			ConversationID: msg.ConversationID,
			Seq:            seq,
			Role:           msg.Role,
			Text:           msg.Text,
			CreatedAt:      createdAt,
		}

		if err := tx.Update(convRef, []firestore.Update{
			{Path: "LastSeq", Value: seq},
			{Path: "LastMessageAt", Value: createdAt},
		}); err != nil {
			return goerr.Wrap(err, "failed to update conversation counter")
		}

		msgRef := r.messagesCollection(msg.ConversationID).Doc(string(id))
		return tx.Set(msgRef, &messageDoc{
			ID:             stored.ID,
			ConversationID: stored.ConversationID,
			Seq:            stored.Seq,
			Role:           stored.Role,
			Text:           stored.Text,
			CreatedAt:      stored.CreatedAt,
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to append message", goerr.V("conversationID", msg.ConversationID))
	}

	return stored, nil
}

func (r *conversationRepository) ListMessagesAfter(ctx context.Context, convID model.ConversationID, afterSeq int64, limit int) ([]*model.Message, error) {
	query := r.messagesCollection(convID).
		Where("Seq", ">", afterSeq).
		OrderBy("Seq", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	messages := make([]*model.Message, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.V("conversationID", convID))
		}

		var d messageDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal message")
		}
		messages = append(messages, fromMessageDoc(&d))
	}

	return messages, nil
}

func (r *conversationRepository) ListRecentMessages(ctx context.Context, convID model.ConversationID, n int) ([]*model.Message, error) {
	iter := r.messagesCollection(convID).
		OrderBy("Seq", firestore.Desc).
		Limit(n).
		Documents(ctx)
	defer iter.Stop()

	messages := make([]*model.Message, 0, n)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate recent messages", goerr.V("conversationID", convID))
		}

		var d messageDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal message")
		}
		messages = append(messages, fromMessageDoc(&d))
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
