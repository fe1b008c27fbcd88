package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Default policy values applied when an agent has no stored config
const (
	DefaultConfidenceThreshold = 70
	DefaultReuseThreshold      = 0.92
	DefaultMergeThreshold      = 0.88
	DefaultEscalationDailyCap  = 5
	DefaultEscalationWeeklyCap = 20
)

// AgentConfig is the owner-tunable answering policy of one agent.
// Values are validated on write and never silently coerced.
type AgentConfig struct {
	AgentID              types.AgentID
	AnswerEnabled        bool
	ConfidenceThreshold  int     // 0..100, minimum confidence to auto-answer
	ReuseThreshold       float64 // 0..1 cosine similarity to reuse a canonical answer
	MergeThreshold       float64 // 0..1 cosine similarity to merge near-duplicate memories
	ClarificationEnabled bool
	EscalationEnabled    bool
	EscalationDailyCap   int
	EscalationWeeklyCap  int
	BlockedTopics        []string
	AllowedTiers         []types.ViewerTier // tiers permitted to trigger escalation
	UpdatedAt            time.Time
}

// DefaultAgentConfig returns the policy applied before the owner tunes anything
func DefaultAgentConfig(agentID types.AgentID) *AgentConfig {
	return &AgentConfig{
		AgentID:              agentID,
		AnswerEnabled:        true,
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		ReuseThreshold:       DefaultReuseThreshold,
		MergeThreshold:       DefaultMergeThreshold,
		ClarificationEnabled: true,
		EscalationEnabled:    true,
		EscalationDailyCap:   DefaultEscalationDailyCap,
		EscalationWeeklyCap:  DefaultEscalationWeeklyCap,
		AllowedTiers:         []types.ViewerTier{types.TierFollower, types.TierPaid},
	}
}

// Validate checks if the AgentConfig is valid
func (c *AgentConfig) Validate() error {
	if err := c.AgentID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid agent ID in config")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return goerr.New("confidence threshold must be between 0 and 100",
			goerr.V("field", "confidence_threshold"), goerr.V("value", c.ConfidenceThreshold))
	}
	if c.ReuseThreshold < 0 || c.ReuseThreshold > 1 {
		return goerr.New("reuse threshold must be between 0 and 1",
			goerr.V("field", "reuse_threshold"), goerr.V("value", c.ReuseThreshold))
	}
	if c.MergeThreshold < 0 || c.MergeThreshold > 1 {
		return goerr.New("merge threshold must be between 0 and 1",
			goerr.V("field", "merge_threshold"), goerr.V("value", c.MergeThreshold))
	}
	if c.EscalationDailyCap < 0 {
		return goerr.New("escalation daily cap must not be negative",
			goerr.V("field", "escalation_daily_cap"), goerr.V("value", c.EscalationDailyCap))
	}
	if c.EscalationWeeklyCap < 0 {
		return goerr.New("escalation weekly cap must not be negative",
			goerr.V("field", "escalation_weekly_cap"), goerr.V("value", c.EscalationWeeklyCap))
	}
	for _, tier := range c.AllowedTiers {
		if !tier.IsValid() {
			return goerr.New("invalid viewer tier in allowed tiers",
				goerr.V("field", "allowed_tiers"), goerr.V("value", tier))
		}
	}
	return nil
}

// TierAllowed reports whether viewers of the given tier may trigger escalation
func (c *AgentConfig) TierAllowed(tier types.ViewerTier) bool {
	for _, t := range c.AllowedTiers {
		if t == tier.Normalize() {
			return true
		}
	}
	return false
}
