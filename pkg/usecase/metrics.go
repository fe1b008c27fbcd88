package usecase

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultMetricsWindowDays is used when the caller does not pick a window
const DefaultMetricsWindowDays = 7

// MetricsUseCase aggregates quality records for the owner dashboard
type MetricsUseCase struct {
	repo interfaces.Repository
}

// NewMetricsUseCase creates a new MetricsUseCase instance
func NewMetricsUseCase(repo interfaces.Repository) *MetricsUseCase {
	return &MetricsUseCase{repo: repo}
}

// GetMetrics aggregates the agent's quality records of the last windowDays
// days. windowDays <= 0 selects the default window.
func (uc *MetricsUseCase) GetMetrics(ctx context.Context, agentID types.AgentID, windowDays int) (*model.AgentMetrics, error) {
	if _, err := uc.repo.Agent().Get(ctx, agentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	if windowDays <= 0 {
		windowDays = DefaultMetricsWindowDays
	}

	since := time.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	records, err := uc.repo.Quality().ListByAgentSince(ctx, agentID, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list quality records", goerr.V(AgentIDKey, agentID))
	}

	metrics := &model.AgentMetrics{
		AgentID:    agentID,
		WindowDays: windowDays,
	}

	var confidenceSum, noveltySum int
	for _, rec := range records {
		metrics.TotalMessages++
		confidenceSum += rec.Confidence
		noveltySum += rec.Novelty

		switch rec.Outcome {
		case types.OutcomeAutoAnswered:
			metrics.AutoAnswered++
		case types.OutcomeCanonicalReused:
			metrics.CanonicalReused++
		case types.OutcomeEscalationOffered:
			metrics.EscalationsOffered++
		case types.OutcomeClarificationRequested:
			metrics.ClarificationRequested++
		case types.OutcomeBlocked:
			metrics.Blocked++
		}
	}

	if metrics.TotalMessages > 0 {
		metrics.AvgConfidence = float64(confidenceSum) / float64(metrics.TotalMessages)
		metrics.AvgNovelty = float64(noveltySum) / float64(metrics.TotalMessages)
		metrics.AutoAnswerRate = float64(metrics.AutoAnswered) / float64(metrics.TotalMessages)
	}

	answered, err := uc.repo.Escalation().ListByAgent(ctx, agentID, types.EscalationAnswered)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list answered escalations", goerr.V(AgentIDKey, agentID))
	}
	for _, esc := range answered {
		if !esc.AnsweredAt.Before(since) {
			metrics.EscalationsAnswered++
		}
	}

	return metrics, nil
}
