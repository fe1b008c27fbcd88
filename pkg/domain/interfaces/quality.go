package interfaces

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// QualityRepository defines the interface for QualityRecord persistence
type QualityRepository interface {
	// Put stores a quality record. Records are write-once per message;
	// a second Put for the same MessageID replaces the stored record.
	Put(ctx context.Context, rec *model.QualityRecord) error

	// Get retrieves the quality record of a message
	Get(ctx context.Context, msgID model.MessageID) (*model.QualityRecord, error)

	// ListByAgentSince retrieves records of an agent created at or after
	// the given time, newest first
	ListByAgentSince(ctx context.Context, agentID types.AgentID, since time.Time) ([]*model.QualityRecord, error)
}
