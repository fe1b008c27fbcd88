package memory

import (
	"math"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is the in-memory repository backend, used by tests and local runs
type Memory struct {
	agent        *agentRepository
	knowledge    *knowledgeRepository
	memoryStore  *memoryRepository
	conversation *conversationRepository
	summary      *summaryRepository
	canonical    *canonicalRepository
	grant        *grantRepository
	ledger       *ledgerRepository
	escalation   *escalationRepository
	quality      *qualityRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		agent:        newAgentRepository(),
		knowledge:    newKnowledgeRepository(),
		memoryStore:  newMemoryRepository(),
		conversation: newConversationRepository(),
		summary:      newSummaryRepository(),
		canonical:    newCanonicalRepository(),
		grant:        newGrantRepository(),
		ledger:       newLedgerRepository(),
		escalation:   newEscalationRepository(),
		quality:      newQualityRepository(),
	}
}

func (m *Memory) Agent() interfaces.AgentRepository {
	return m.agent
}

func (m *Memory) Knowledge() interfaces.KnowledgeRepository {
	return m.knowledge
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memoryStore
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Summary() interfaces.SummaryRepository {
	return m.summary
}

func (m *Memory) Canonical() interfaces.CanonicalRepository {
	return m.canonical
}

func (m *Memory) Grant() interfaces.GrantRepository {
	return m.grant
}

func (m *Memory) Ledger() interfaces.LedgerRepository {
	return m.ledger
}

func (m *Memory) Escalation() interfaces.EscalationRepository {
	return m.escalation
}

func (m *Memory) Quality() interfaces.QualityRepository {
	return m.quality
}

func (m *Memory) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
