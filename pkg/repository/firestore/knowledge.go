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

// chunkDoc is the Firestore document representation of model.KnowledgeChunk.
// Embedding is stored as firestore.Vector32 so that FindNearest vector
// search works.
type chunkDoc struct {
	ID           model.ChunkID        `firestore:"ID"`
	AgentID      types.AgentID        `firestore:"AgentID"`
	Text         string               `firestore:"Text"`
	Embedding    firestore.Vector32   `firestore:"Embedding,omitempty"`
	Layer        types.KnowledgeLayer `firestore:"Layer"`
	Source       string               `firestore:"Source"`
	SupersededBy string               `firestore:"SupersededBy"`
	CreatedAt    time.Time            `firestore:"CreatedAt"`
}

func toChunkDoc(c *model.KnowledgeChunk) *chunkDoc {
	doc := &chunkDoc{
		ID:           c.ID,
		AgentID:      c.AgentID,
		Text:         c.Text,
		Layer:        c.Layer,
		Source:       c.Source,
		SupersededBy: string(c.SupersededBy),
		CreatedAt:    c.CreatedAt,
	}
	if len(c.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(c.Embedding)
	}
	return doc
}

func fromChunkDoc(d *chunkDoc) *model.KnowledgeChunk {
	c := &model.KnowledgeChunk{
		ID:           d.ID,
		AgentID:      d.AgentID,
		Text:         d.Text,
		Layer:        d.Layer,
		Source:       d.Source,
		SupersededBy: model.ChunkID(d.SupersededBy),
		CreatedAt:    d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		c.Embedding = []float32(d.Embedding)
	}
	return c
}

func docToChunk(doc *firestore.DocumentSnapshot) (*model.KnowledgeChunk, error) {
	var d chunkDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromChunkDoc(&d), nil
}

type knowledgeRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *knowledgeRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *knowledgeRepository) chunksCollection(agentID types.AgentID) *firestore.CollectionRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("chunks")
}

func (r *knowledgeRepository) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	if chunk.ID == "" {
		chunk.ID = model.NewChunkID()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	docRef := r.chunksCollection(chunk.AgentID).Doc(string(chunk.ID))
	if _, err := docRef.Set(ctx, toChunkDoc(chunk)); err != nil {
		return goerr.Wrap(err, "failed to put chunk", goerr.V("id", chunk.ID))
	}
	return nil
}

func (r *knowledgeRepository) Get(ctx context.Context, agentID types.AgentID, id model.ChunkID) (*model.KnowledgeChunk, error) {
	doc, err := r.chunksCollection(agentID).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get chunk", goerr.V("id", id))
	}

	return docToChunk(doc)
}

func (r *knowledgeRepository) ListBySource(ctx context.Context, agentID types.AgentID, source string) ([]*model.KnowledgeChunk, error) {
	iter := r.chunksCollection(agentID).
		Where("Source", "==", source).
		Where("SupersededBy", "==", "").
		Documents(ctx)
	defer iter.Stop()

	chunks := make([]*model.KnowledgeChunk, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunks", goerr.V("source", source))
		}

		c, err := docToChunk(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chunk")
		}
		chunks = append(chunks, c)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.After(chunks[j].CreatedAt)
	})

	return chunks, nil
}

func (r *knowledgeRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.ChunkID) error {
	docRef := r.chunksCollection(agentID).Doc(string(id))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "SupersededBy", Value: string(by)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to supersede chunk", goerr.V("id", id))
	}
	return nil
}

func (r *knowledgeRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredChunk, error) {
	layers := make([]string, 0, 3)
	for _, l := range types.LayersUpTo(maxLayer) {
		layers = append(layers, l.String())
	}

	vq := r.chunksCollection(agentID).
		Where("SupersededBy", "==", "").
		Where("Layer", "in", layers).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]*interfaces.ScoredChunk, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunk vector search results")
		}

		c, err := docToChunk(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chunk from vector search")
		}
		hits = append(hits, &interfaces.ScoredChunk{
			Chunk:      c,
			Similarity: cosineSimilarity(embedding, c.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.CreatedAt.After(hits[j].Chunk.CreatedAt)
	})

	return hits, nil
}
