package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Agent() AgentRepository
	Knowledge() KnowledgeRepository
	Memory() MemoryRepository
	Conversation() ConversationRepository
	Summary() SummaryRepository
	Canonical() CanonicalRepository
	Grant() GrantRepository
	Ledger() LedgerRepository
	Escalation() EscalationRepository
	Quality() QualityRepository

	// Close releases underlying client resources
	Close() error
}
