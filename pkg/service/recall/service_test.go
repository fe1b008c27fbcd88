package recall_test

import (
	"context"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{`{"memories":[]}`}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	sessionCalls int
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	c.sessionCalls++
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	vec := make([]float64, dimension)
	vec[0] = 1
	return [][]float64{vec}, nil
}

func respondWith(text string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

func testTurn() recall.Input {
	viewerMsg := &model.Message{
		ID:   model.NewMessageID(),
		Role: types.RoleViewer,
		Text: "I just moved to Lisbon, my sister still lives in Porto",
	}
	agentMsg := &model.Message{
		ID:   model.NewMessageID(),
		Role: types.RoleAgent,
		Text: "Nice, how are you settling in?",
	}
	return recall.Input{
		Agent:    &model.Agent{ID: "test-agent", Name: "Test Agent"},
		Messages: []*model.Message{viewerMsg, agentMsg},
	}
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("parses memories from structured output", func(t *testing.T) {
		llm := respondWith(`{"memories":[
			{"kind":"fact","content":"The viewer lives in Lisbon","confidence":90,"layer":"friends"},
			{"kind":"relationship","content":"The viewer's sister lives in Porto","confidence":85,"layer":"intimate"}
		]}`)
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		input := testTurn()
		memories, err := svc.Extract(ctx, input)
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(2)

		gt.Value(t, memories[0].Kind).Equal(types.MemoryFact)
		gt.Value(t, memories[0].Layer).Equal(types.LayerFriends)
		gt.Number(t, memories[0].Confidence).Equal(90)
		gt.Value(t, memories[0].SourceMessageID).Equal(input.Messages[0].ID)
		gt.Number(t, len(memories[0].Embedding)).Equal(model.EmbeddingDimension)

		gt.Value(t, memories[1].Kind).Equal(types.MemoryRelationship)
		gt.Value(t, memories[1].Layer).Equal(types.LayerIntimate)
	})

	t.Run("skips entries with unknown kind", func(t *testing.T) {
		llm := respondWith(`{"memories":[
			{"kind":"opinion","content":"Something","confidence":50,"layer":"public"},
			{"kind":"preference","content":"The viewer prefers email over calls","confidence":70,"layer":"public"}
		]}`)
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		memories, err := svc.Extract(ctx, testTurn())
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(1)
		gt.Value(t, memories[0].Kind).Equal(types.MemoryPreference)
	})

	t.Run("unknown layer falls back to intimate", func(t *testing.T) {
		llm := respondWith(`{"memories":[
			{"kind":"fact","content":"The viewer changed jobs","confidence":80,"layer":"secret"}
		]}`)
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		memories, err := svc.Extract(ctx, testTurn())
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(1)
		gt.Value(t, memories[0].Layer).Equal(types.LayerIntimate)
	})

	t.Run("clamps out of range confidence", func(t *testing.T) {
		llm := respondWith(`{"memories":[
			{"kind":"fact","content":"Overconfident statement","confidence":150,"layer":"public"}
		]}`)
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		memories, err := svc.Extract(ctx, testTurn())
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(1)
		gt.Number(t, memories[0].Confidence).Equal(100)
	})

	t.Run("empty turn skips the LLM entirely", func(t *testing.T) {
		llm := &mockLLMClient{}
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		memories, err := svc.Extract(ctx, recall.Input{
			Agent: &model.Agent{ID: "test-agent"},
		})
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(0)
		gt.Number(t, llm.sessionCalls).Equal(0)
	})

	t.Run("malformed output returns an error", func(t *testing.T) {
		llm := respondWith(`not json at all`)
		svc, err := recall.New(llm)
		gt.NoError(t, err).Required()

		_, err = svc.Extract(ctx, testTurn())
		gt.Error(t, err)
	})

	t.Run("requires an LLM client", func(t *testing.T) {
		_, err := recall.New(nil)
		gt.Error(t, err)
	})
}
