package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
)

type Firestore struct {
	client       *firestore.Client
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

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes every root collection name. Used to keep
// test data apart from production data in a shared project.
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.agent.collectionPrefix = prefix
		f.knowledge.collectionPrefix = prefix
		f.memoryStore.collectionPrefix = prefix
		f.conversation.collectionPrefix = prefix
		f.summary.collectionPrefix = prefix
		f.canonical.collectionPrefix = prefix
		f.grant.collectionPrefix = prefix
		f.ledger.collectionPrefix = prefix
		f.escalation.collectionPrefix = prefix
		f.quality.collectionPrefix = prefix
	}
}

// New connects to Firestore. An empty databaseID selects the project's
// default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		agent:        &agentRepository{client: client},
		knowledge:    &knowledgeRepository{client: client},
		memoryStore:  &memoryRepository{client: client},
		conversation: &conversationRepository{client: client},
		summary:      &summaryRepository{client: client},
		canonical:    &canonicalRepository{client: client},
		grant:        &grantRepository{client: client},
		ledger:       &ledgerRepository{client: client},
		escalation:   &escalationRepository{client: client},
		quality:      &qualityRepository{client: client},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Agent() interfaces.AgentRepository {
	return f.agent
}

func (f *Firestore) Knowledge() interfaces.KnowledgeRepository {
	return f.knowledge
}

func (f *Firestore) Memory() interfaces.MemoryRepository {
	return f.memoryStore
}

func (f *Firestore) Conversation() interfaces.ConversationRepository {
	return f.conversation
}

func (f *Firestore) Summary() interfaces.SummaryRepository {
	return f.summary
}

func (f *Firestore) Canonical() interfaces.CanonicalRepository {
	return f.canonical
}

func (f *Firestore) Grant() interfaces.GrantRepository {
	return f.grant
}

func (f *Firestore) Ledger() interfaces.LedgerRepository {
	return f.ledger
}

func (f *Firestore) Escalation() interfaces.EscalationRepository {
	return f.escalation
}

func (f *Firestore) Quality() interfaces.QualityRepository {
	return f.quality
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
