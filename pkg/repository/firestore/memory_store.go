package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// memoryDoc is the Firestore document representation of model.Memory.
// Embedding is stored as firestore.Vector32 for FindNearest vector search.
type memoryDoc struct {
	ID              model.MemoryID       `firestore:"ID"`
	AgentID         types.AgentID        `firestore:"AgentID"`
	Kind            types.MemoryKind     `firestore:"Kind"`
	Content         string               `firestore:"Content"`
	Confidence      int                  `firestore:"Confidence"`
	Layer           types.KnowledgeLayer `firestore:"Layer"`
	SourceMessageID string               `firestore:"SourceMessageID"`
	Embedding       firestore.Vector32   `firestore:"Embedding,omitempty"`
	SupersededBy    string               `firestore:"SupersededBy"`
	CreatedAt       time.Time            `firestore:"CreatedAt"`
}

func toMemoryDoc(m *model.Memory) *memoryDoc {
	doc := &memoryDoc{
		ID:              m.ID,
		AgentID:         m.AgentID,
		Kind:            m.Kind,
		Content:         m.Content,
		Confidence:      m.Confidence,
		Layer:           m.Layer,
		SourceMessageID: string(m.SourceMessageID),
		SupersededBy:    string(m.SupersededBy),
		CreatedAt:       m.CreatedAt,
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromMemoryDoc(d *memoryDoc) *model.Memory {
	m := &model.Memory{
		ID:              d.ID,
		AgentID:         d.AgentID,
		Kind:            d.Kind,
		Content:         d.Content,
		Confidence:      d.Confidence,
		Layer:           d.Layer,
		SourceMessageID: model.MessageID(d.SourceMessageID),
		SupersededBy:    model.MemoryID(d.SupersededBy),
		CreatedAt:       d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m
}

func docToMemory(doc *firestore.DocumentSnapshot) (*model.Memory, error) {
	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromMemoryDoc(&d), nil
}

type memoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *memoryRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *memoryRepository) memoriesCollection(agentID types.AgentID) *firestore.CollectionRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("memories")
}

func (r *memoryRepository) Put(ctx context.Context, memory *model.Memory) error {
	if memory.ID == "" {
		memory.ID = model.NewMemoryID()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}

	docRef := r.memoriesCollection(memory.AgentID).Doc(string(memory.ID))
	if _, err := docRef.Set(ctx, toMemoryDoc(memory)); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("id", memory.ID))
	}
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, agentID types.AgentID, id model.MemoryID) (*model.Memory, error) {
	doc, err := r.memoriesCollection(agentID).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}

	return docToMemory(doc)
}

func (r *memoryRepository) ListLive(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	iter := r.memoriesCollection(agentID).
		Where("SupersededBy", "==", "").
		Documents(ctx)
	defer iter.Stop()

	memories := make([]*model.Memory, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("agentID", agentID))
		}

		m, err := docToMemory(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory")
		}
		memories = append(memories, m)
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})

	return memories, nil
}

func (r *memoryRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.MemoryID) error {
	docRef := r.memoriesCollection(agentID).Doc(string(id))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "SupersededBy", Value: string(by)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to supersede memory", goerr.V("id", id))
	}
	return nil
}

func (r *memoryRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredMemory, error) {
	layers := make([]string, 0, 3)
	for _, l := range types.LayersUpTo(maxLayer) {
		layers = append(layers, l.String())
	}

	vq := r.memoriesCollection(agentID).
		Where("SupersededBy", "==", "").
		Where("Layer", "in", layers).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]*interfaces.ScoredMemory, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory vector search results")
		}

		m, err := docToMemory(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory from vector search")
		}
		hits = append(hits, &interfaces.ScoredMemory{
			Memory:     m,
			Similarity: cosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
	})

	return hits, nil
}
