package model

import "github.com/doppel-lab/keryx/pkg/domain/types"

// AgentMetrics is the aggregate over an agent's quality records within a
// time window, for the owner dashboard
type AgentMetrics struct {
	AgentID    types.AgentID
	WindowDays int

	TotalMessages          int
	AutoAnswered           int
	CanonicalReused        int
	EscalationsOffered     int
	EscalationsAnswered    int
	ClarificationRequested int
	Blocked                int

	AvgConfidence  float64
	AvgNovelty     float64
	AutoAnswerRate float64 // AutoAnswered / TotalMessages
}
