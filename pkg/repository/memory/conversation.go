package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type conversationRepository struct {
	mu            sync.Mutex
	conversations map[model.ConversationID]*model.Conversation
	messages      map[model.ConversationID][]*model.Message
	nextSeq       map[model.ConversationID]int64
}

func newConversationRepository() *conversationRepository {
	return &conversationRepository{
		conversations: make(map[model.ConversationID]*model.Conversation),
		messages:      make(map[model.ConversationID][]*model.Message),
		nextSeq:       make(map[model.ConversationID]int64),
	}
}

func copyConversation(c *model.Conversation) *model.Conversation {
	copied := *c
	return &copied
}

func copyMessage(m *model.Message) *model.Message {
	copied := *m
	return &copied
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv.ID == "" {
		conv.ID = model.NewConversationID()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}
	stored := copyConversation(conv)

	r.conversations[stored.ID] = stored
	r.nextSeq[stored.ID] = 1
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
	}

	return copyConversation(conv), nil
}

func (r *conversationRepository) ListByAgent(ctx context.Context, agentID types.AgentID) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.Conversation
	for _, c := range r.conversations {
		if c.AgentID == agentID {
			result = append(result, copyConversation(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})

	return result, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[msg.ConversationID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", msg.ConversationID))
	}

	stored := copyMessage(msg)
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	seq := r.nextSeq[msg.ConversationID]
	if seq == 0 {
		seq = 1
	}
	stored.Seq = seq
	r.nextSeq[msg.ConversationID] = seq + 1

	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], stored)
	conv.LastMessageAt = stored.CreatedAt

	return copyMessage(stored), nil
}

func (r *conversationRepository) ListMessagesAfter(ctx context.Context, convID model.ConversationID, afterSeq int64, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.Message
	for _, m := range r.messages[convID] {
		if m.Seq > afterSeq {
			result = append(result, copyMessage(m))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

func (r *conversationRepository) ListRecentMessages(ctx context.Context, convID model.ConversationID, n int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.messages[convID]
	result := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, copyMessage(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	if n > 0 && n < len(result) {
		result = result[len(result)-n:]
	}

	return result, nil
}
