package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/service/notify"
	"github.com/doppel-lab/keryx/pkg/utils/async"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt/answer_system.md
var answerSystemPromptTmpl string

var answerSystemPrompt = template.Must(template.New("answer_system").Parse(answerSystemPromptTmpl))

// Timeouts for the synchronous part of a message turn. A slow embedding
// or retrieval degrades the turn to empty context instead of failing it.
const (
	embedTimeout      = 10 * time.Second
	retrievalTimeout  = 5 * time.Second
	generationTimeout = 30 * time.Second

	retrievalLimit        = 5
	canonicalLimit        = 3
	recentContextMessages = 10
)

var generationRetryDelay = 2 * time.Second

// Viewer-facing texts for the outcomes that do not generate
const (
	blockedReply       = "I'd rather not get into that topic here. Happy to talk about something else."
	answeringOffReply  = "I'm not taking questions right now, but thanks for reaching out."
	clarificationReply = "I'm not sure I follow. Could you rephrase that, or add a bit more detail?"
	escalationReply    = "Good question, and I don't want to guess. I've passed it on and will get back to you with a proper answer."
	fallbackReply      = "I can't give you a good answer right now. Please try again in a little while."
	disclaimerPrefix   = "I'm not fully certain about this, so take it with a grain of salt: "
)

// AnswerUseCase runs the decision pipeline for incoming viewer messages
type AnswerUseCase struct {
	repo        interfaces.Repository
	llmClient   gollem.LLMClient
	access      *AccessUseCase
	consolidate *ConsolidateUseCase
	summarize   *SummarizeUseCase
	notifySvc   *notify.Service
}

// NewAnswerUseCase creates a new AnswerUseCase instance
func NewAnswerUseCase(repo interfaces.Repository, llmClient gollem.LLMClient, access *AccessUseCase, consolidate *ConsolidateUseCase, summarize *SummarizeUseCase, notifySvc *notify.Service) *AnswerUseCase {
	return &AnswerUseCase{
		repo:        repo,
		llmClient:   llmClient,
		access:      access,
		consolidate: consolidate,
		summarize:   summarize,
		notifySvc:   notifySvc,
	}
}

// turn carries the state accumulated while one message is handled
type turn struct {
	agent     *model.Agent
	viewer    *model.Viewer
	conv      *model.Conversation
	viewerMsg *model.Message

	outcome      types.Outcome
	reply        string
	confidence   int
	novelty      int
	escalationID model.EscalationID
	skipLearning bool
}

// HandleMessage handles one viewer message end to end and returns the
// decision. Every outcome carries a reply; only an unknown agent or a
// storage failure surfaces as an error.
func (uc *AnswerUseCase) HandleMessage(ctx context.Context, agentID types.AgentID, viewer *model.Viewer, conversationID model.ConversationID, text string) (*model.Decision, error) {
	logger := logging.From(ctx)

	agent, err := uc.repo.Agent().Get(ctx, agentID)
	if err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	maxLayer, err := uc.access.ResolveForAgent(ctx, viewer.ID, agent)
	if err != nil {
		return nil, err
	}
	config := effectiveConfig(ctx, uc.repo, agentID)

	conv, err := uc.ensureConversation(ctx, agentID, viewer, conversationID)
	if err != nil {
		return nil, err
	}

	viewerMsg, err := uc.repo.Conversation().AppendMessage(ctx, &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: conv.ID,
		Role:           types.RoleViewer,
		Text:           text,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store viewer message",
			goerr.V(ConversationIDKey, conv.ID))
	}

	t := &turn{agent: agent, viewer: viewer, conv: conv, viewerMsg: viewerMsg}

	// Blocked topics win over every other outcome
	if topic, blocked := matchBlockedTopic(config.BlockedTopics, text); blocked {
		logger.Info("message blocked by topic filter",
			"agent_id", agentID, "topic", topic)
		t.outcome = types.OutcomeBlocked
		t.reply = blockedReply
		t.novelty = 100
		t.skipLearning = true
		return uc.finishTurn(ctx, t)
	}

	if !config.AnswerEnabled {
		t.outcome = types.OutcomeBlocked
		t.reply = answeringOffReply
		t.novelty = 100
		t.skipLearning = true
		return uc.finishTurn(ctx, t)
	}

	retr := uc.retrieve(ctx, agentID, maxLayer, text)

	t.confidence = confidenceScore(retr.similarities())
	t.novelty = noveltyScore(retr.bestCanonicalSimilarity())

	// Cached answer close enough to serve verbatim
	if best := retr.bestCanonical(); best != nil && best.Similarity >= config.ReuseThreshold {
		if err := uc.repo.Canonical().IncrementReuse(ctx, agentID, best.Answer.ID); err != nil {
			logger.Warn("failed to increment canonical reuse",
				"canonical_id", best.Answer.ID, "error", err.Error())
		}
		t.outcome = types.OutcomeCanonicalReused
		t.reply = best.Answer.Answer
		return uc.finishTurn(ctx, t)
	}

	// Nothing retrievable and no confidence: ask instead of guessing
	if config.ClarificationEnabled && retr.nearEmpty() && t.confidence < config.ConfidenceThreshold {
		t.outcome = types.OutcomeClarificationRequested
		t.reply = clarificationReply
		return uc.finishTurn(ctx, t)
	}

	if t.confidence >= config.ConfidenceThreshold {
		// At the margin of the threshold a human answer beats a generated
		// one, as long as escalation budget remains
		if t.confidence < config.ConfidenceThreshold+escalationEpsilon {
			if esc := uc.tryEscalate(ctx, t, config); esc != nil {
				t.outcome = types.OutcomeEscalationOffered
				t.reply = escalationReply
				t.escalationID = esc.ID
				return uc.finishTurn(ctx, t)
			}
		}

		answer, generated := uc.generateAnswer(ctx, t, retr)
		if generated {
			uc.storeCanonical(ctx, agentID, text, retr.questionEmbedding, answer, t.confidence, config.ReuseThreshold)
			t.outcome = types.OutcomeAutoAnswered
			t.reply = answer
			return uc.finishTurn(ctx, t)
		}
		t.outcome = types.OutcomeAutoAnswered
		t.reply = fallbackReply
		return uc.finishTurn(ctx, t)
	}

	if esc := uc.tryEscalate(ctx, t, config); esc != nil {
		t.outcome = types.OutcomeEscalationOffered
		t.reply = escalationReply
		t.escalationID = esc.ID
		return uc.finishTurn(ctx, t)
	}

	// Last resort: answer anyway, but say that the ground is thin
	answer, generated := uc.generateAnswer(ctx, t, retr)
	t.outcome = types.OutcomeAutoAnswered
	if generated {
		t.reply = disclaimerPrefix + answer
	} else {
		t.reply = fallbackReply
	}
	return uc.finishTurn(ctx, t)
}

// ensureConversation resolves the conversation to append to. A missing or
// foreign conversation ID silently starts a fresh thread instead of
// leaking another viewer's history.
func (uc *AnswerUseCase) ensureConversation(ctx context.Context, agentID types.AgentID, viewer *model.Viewer, conversationID model.ConversationID) (*model.Conversation, error) {
	if conversationID != "" {
		conv, err := uc.repo.Conversation().Get(ctx, conversationID)
		if err == nil && conv.AgentID == agentID && conv.ViewerID == viewer.ID {
			return conv, nil
		}
		if err == nil {
			logging.From(ctx).Warn("conversation does not belong to this viewer, starting a new one",
				"conversation_id", conversationID, "viewer_id", viewer.ID)
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:            model.NewConversationID(),
		AgentID:       agentID,
		ViewerID:      viewer.ID,
		ViewerTier:    viewer.Tier.Normalize(),
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := uc.repo.Conversation().Create(ctx, conv); err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation",
			goerr.V(AgentIDKey, agentID), goerr.V(ViewerIDKey, viewer.ID))
	}
	return conv, nil
}

// matchBlockedTopic reports whether the text contains any configured
// blocked topic, case-insensitive
func matchBlockedTopic(topics []string, text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			return topic, true
		}
	}
	return "", false
}

// retrieval is the context gathered for one question
type retrieval struct {
	questionEmbedding []float32
	chunks            []*interfaces.ScoredChunk
	memories          []*interfaces.ScoredMemory
	canonicals        []*interfaces.ScoredCanonical
}

func (r *retrieval) similarities() []float64 {
	sims := make([]float64, 0, len(r.chunks)+len(r.memories))
	for _, c := range r.chunks {
		sims = append(sims, c.Similarity)
	}
	for _, m := range r.memories {
		sims = append(sims, m.Similarity)
	}
	return sims
}

func (r *retrieval) bestCanonical() *interfaces.ScoredCanonical {
	if len(r.canonicals) == 0 {
		return nil
	}
	return r.canonicals[0]
}

func (r *retrieval) bestCanonicalSimilarity() float64 {
	if best := r.bestCanonical(); best != nil {
		return best.Similarity
	}
	return 0
}

func (r *retrieval) nearEmpty() bool {
	return len(r.chunks)+len(r.memories) <= 1
}

// retrieve embeds the question and gathers chunks, memories and canonical
// candidates in parallel. Any failure degrades to an empty result so the
// turn still completes; confidence sinks accordingly.
func (uc *AnswerUseCase) retrieve(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, text string) *retrieval {
	logger := logging.From(ctx)
	retr := &retrieval{}

	if uc.llmClient == nil {
		return retr
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	embeddings, err := uc.llmClient.GenerateEmbedding(embedCtx, model.EmbeddingDimension, []string{text})
	if err != nil || len(embeddings) == 0 {
		logger.Warn("failed to embed question, answering without context",
			"agent_id", agentID, "error", errString(err))
		return retr
	}
	retr.questionEmbedding = make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		retr.questionEmbedding[i] = float32(v)
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, retrievalTimeout)
	defer cancelSearch()

	eg, egCtx := errgroup.WithContext(searchCtx)
	eg.Go(func() error {
		chunks, err := uc.repo.Knowledge().FindNearest(egCtx, agentID, maxLayer, retr.questionEmbedding, retrievalLimit)
		if err != nil {
			logger.Warn("chunk retrieval failed", "agent_id", agentID, "error", err.Error())
			return nil
		}
		retr.chunks = chunks
		return nil
	})
	eg.Go(func() error {
		memories, err := uc.repo.Memory().FindNearest(egCtx, agentID, maxLayer, retr.questionEmbedding, retrievalLimit)
		if err != nil {
			logger.Warn("memory retrieval failed", "agent_id", agentID, "error", err.Error())
			return nil
		}
		retr.memories = memories
		return nil
	})
	eg.Go(func() error {
		canonicals, err := uc.repo.Canonical().FindNearest(egCtx, agentID, retr.questionEmbedding, canonicalLimit)
		if err != nil {
			logger.Warn("canonical lookup failed", "agent_id", agentID, "error", err.Error())
			return nil
		}
		retr.canonicals = canonicals
		return nil
	})
	_ = eg.Wait()

	return retr
}

// tryEscalate consumes escalation budget and persists the ticket. A nil
// return means escalation is not available for this turn.
func (uc *AnswerUseCase) tryEscalate(ctx context.Context, t *turn, config *model.AgentConfig) *model.Escalation {
	logger := logging.From(ctx)

	if !config.EscalationEnabled || !config.TierAllowed(t.viewer.Tier) {
		return nil
	}

	now := time.Now()
	granted, err := uc.repo.Ledger().Consume(ctx, t.agent.ID,
		model.DayBucket(now), model.WeekBucket(now),
		config.EscalationDailyCap, config.EscalationWeeklyCap)
	if err != nil {
		logger.Warn("escalation ledger unavailable", "agent_id", t.agent.ID, "error", err.Error())
		return nil
	}
	if !granted {
		logger.Info("escalation budget exhausted", "agent_id", t.agent.ID)
		return nil
	}

	esc := &model.Escalation{
		ID:             model.NewEscalationID(),
		AgentID:        t.agent.ID,
		ConversationID: t.conv.ID,
		MessageID:      t.viewerMsg.ID,
		Question:       t.viewerMsg.Text,
		Status:         types.EscalationPending,
		CreatedAt:      now,
	}
	if err := uc.repo.Escalation().Put(ctx, esc); err != nil {
		logger.Error("failed to store escalation ticket", "agent_id", t.agent.ID, "error", err.Error())
		return nil
	}

	if uc.notifySvc != nil {
		agent := t.agent
		async.Dispatch(ctx, "notify-escalation", func(ctx context.Context) error {
			return uc.notifySvc.NotifyEscalation(ctx, agent, esc)
		})
	}

	return esc
}

// promptKnowledge is one knowledge chunk for template rendering
type promptKnowledge struct {
	Source  string
	Content string
}

// promptMemory is one consolidated memory for template rendering
type promptMemory struct {
	Kind    string
	Content string
}

// promptHistory is one recent message for template rendering
type promptHistory struct {
	Role string
	Text string
}

// answerPromptData holds all data for the answer system prompt template
type answerPromptData struct {
	AgentName string
	Persona   string
	Knowledge []promptKnowledge
	Memories  []promptMemory
	Summaries []string
	History   []promptHistory
}

// answerResponse is the structured output of the generation session
type answerResponse struct {
	Answer string `json:"answer"`
}

func answerResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "Answer",
		Description: "The agent's reply to the viewer",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"answer": {
				Type:        gollem.TypeString,
				Description: "Reply text shown to the viewer",
				Required:    true,
			},
		},
	}
}

// generateAnswer produces a grounded reply via the LLM. It retries once
// with backoff; false means both attempts failed and the caller must fall
// back to a fixed text.
func (uc *AnswerUseCase) generateAnswer(ctx context.Context, t *turn, retr *retrieval) (string, bool) {
	logger := logging.From(ctx)

	if uc.llmClient == nil {
		return "", false
	}

	systemPrompt := uc.buildAnswerPrompt(ctx, t, retr)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(generationRetryDelay):
			case <-ctx.Done():
				return "", false
			}
		}

		answer, err := uc.generateOnce(ctx, systemPrompt, t.viewerMsg.Text)
		if err != nil {
			logger.Warn("answer generation failed",
				"agent_id", t.agent.ID, "attempt", attempt+1, "error", err.Error())
			continue
		}
		return answer, true
	}

	return "", false
}

func (uc *AnswerUseCase) generateOnce(ctx context.Context, systemPrompt, question string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	session, err := uc.llmClient.NewSession(genCtx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(answerResponseSchema()),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create generation session")
	}

	resp, err := session.GenerateContent(genCtx, gollem.Text(question))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate answer")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("no response from LLM")
	}

	var parsed answerResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		return "", goerr.Wrap(err, "failed to parse generation response",
			goerr.V("response", resp.Texts[0]))
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return "", goerr.New("empty answer from LLM")
	}

	return parsed.Answer, nil
}

// buildAnswerPrompt renders the system prompt from persona, retrieved
// context and the conversation's summary chain plus recent raw messages
func (uc *AnswerUseCase) buildAnswerPrompt(ctx context.Context, t *turn, retr *retrieval) string {
	data := answerPromptData{
		AgentName: t.agent.Name,
		Persona:   t.agent.Persona,
	}

	for _, c := range retr.chunks {
		data.Knowledge = append(data.Knowledge, promptKnowledge{
			Source:  c.Chunk.Source,
			Content: c.Chunk.Text,
		})
	}
	for _, m := range retr.memories {
		data.Memories = append(data.Memories, promptMemory{
			Kind:    string(m.Memory.Kind),
			Content: m.Memory.Content,
		})
	}

	summaries, err := uc.repo.Summary().ListByConversation(ctx, t.conv.ID)
	if err == nil {
		for _, s := range summaries {
			data.Summaries = append(data.Summaries, s.Content)
		}
	}
	recent, err := uc.repo.Conversation().ListRecentMessages(ctx, t.conv.ID, recentContextMessages+1)
	if err == nil {
		for _, msg := range recent {
			if msg.ID == t.viewerMsg.ID {
				continue
			}
			data.History = append(data.History, promptHistory{
				Role: string(msg.Role),
				Text: msg.Text,
			})
		}
	}

	var buf bytes.Buffer
	if err := answerSystemPrompt.Execute(&buf, data); err != nil {
		return "You are " + t.agent.Name + ", answering on behalf of your owner. Answer only from what you know for sure."
	}
	return buf.String()
}

// storeCanonical caches a confidently generated answer for reuse. Failures
// only cost future cache hits, so they are logged and swallowed.
func (uc *AnswerUseCase) storeCanonical(ctx context.Context, agentID types.AgentID, question string, embedding []float32, answer string, confidence int, reuseThreshold float64) {
	if len(embedding) == 0 {
		return
	}

	// A concurrent turn may have stored an equivalent answer after this
	// turn missed the cache. Re-check before inserting so the loser of the
	// race counts as a reuse instead of a duplicate entry.
	hits, err := uc.repo.Canonical().FindNearest(ctx, agentID, embedding, 1)
	if err != nil {
		logging.From(ctx).Warn("failed to re-check canonical cache before store",
			"agent_id", agentID, "error", err.Error())
	} else if len(hits) > 0 && hits[0].Similarity >= reuseThreshold {
		if err := uc.repo.Canonical().IncrementReuse(ctx, agentID, hits[0].Answer.ID); err != nil {
			logging.From(ctx).Warn("failed to increment canonical reuse",
				"canonical_id", hits[0].Answer.ID, "error", err.Error())
		}
		return
	}

	entry := &model.CanonicalAnswer{
		ID:         model.NewCanonicalID(),
		AgentID:    agentID,
		Question:   question,
		Embedding:  embedding,
		Answer:     answer,
		Confidence: model.ClampScore(confidence),
		CreatedAt:  time.Now(),
	}
	if err := uc.repo.Canonical().Put(ctx, entry); err != nil {
		logging.From(ctx).Warn("failed to store canonical answer",
			"agent_id", agentID, "error", err.Error())
	}
}

// finishTurn persists the reply and the quality scaffold, kicks off the
// deferred learning work and builds the decision
func (uc *AnswerUseCase) finishTurn(ctx context.Context, t *turn) (*model.Decision, error) {
	logger := logging.From(ctx)

	agentMsg, err := uc.repo.Conversation().AppendMessage(ctx, &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: t.conv.ID,
		Role:           types.RoleAgent,
		Text:           t.reply,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store agent reply",
			goerr.V(ConversationIDKey, t.conv.ID))
	}

	record := model.NewQualityRecord(t.viewerMsg.ID, t.conv.ID, t.agent.ID,
		t.outcome, t.confidence, t.novelty, time.Now())
	if err := uc.repo.Quality().Put(ctx, record); err != nil {
		logger.Warn("failed to store quality record",
			"message_id", t.viewerMsg.ID, "error", err.Error())
	}

	if !t.skipLearning && uc.consolidate != nil {
		agent := t.agent
		msgs := []*model.Message{t.viewerMsg, agentMsg}
		async.Dispatch(ctx, "capture-turn", func(ctx context.Context) error {
			return uc.consolidate.CaptureTurn(ctx, agent, msgs)
		})
	}
	if uc.summarize != nil {
		convID := t.conv.ID
		async.Dispatch(ctx, "maybe-summarize", func(ctx context.Context) error {
			return uc.summarize.MaybeSummarize(ctx, convID)
		})
	}

	logger.Info("message handled",
		"agent_id", t.agent.ID,
		"conversation_id", t.conv.ID,
		"outcome", t.outcome,
		"confidence", t.confidence,
		"novelty", t.novelty,
	)

	return &model.Decision{
		Outcome:        t.outcome,
		Reply:          t.reply,
		Confidence:     t.confidence,
		Novelty:        t.novelty,
		ConversationID: t.conv.ID,
		MessageID:      agentMsg.ID,
		EscalationID:   t.escalationID,
	}, nil
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}
