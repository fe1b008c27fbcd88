package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// AppConfig represents the application configuration: the agents
// provisioned at startup and their answering policies
type AppConfig struct {
	Agents []AgentSeed `toml:"agent"`
}

// AgentSeed declares one agent to register at startup. The ID must be
// given explicitly so restarts upsert the same agent instead of minting
// a new one.
type AgentSeed struct {
	ID      string      `toml:"id"`
	OwnerID string      `toml:"owner_id"`
	Name    string      `toml:"name"`
	Persona string      `toml:"persona"`
	Policy  *PolicySeed `toml:"policy"`
}

// PolicySeed overrides parts of the default answering policy. Omitted
// fields keep their default values, so every field is a pointer.
type PolicySeed struct {
	AnswerEnabled        *bool    `toml:"answer_enabled"`
	ConfidenceThreshold  *int     `toml:"confidence_threshold"`
	ReuseThreshold       *float64 `toml:"reuse_threshold"`
	MergeThreshold       *float64 `toml:"merge_threshold"`
	ClarificationEnabled *bool    `toml:"clarification_enabled"`
	EscalationEnabled    *bool    `toml:"escalation_enabled"`
	EscalationDailyCap   *int     `toml:"escalation_daily_cap"`
	EscalationWeeklyCap  *int     `toml:"escalation_weekly_cap"`
	BlockedTopics        []string `toml:"blocked_topics"`
	AllowedTiers         []string `toml:"allowed_tiers"`
}

// Validate checks if the AgentSeed is valid
func (s *AgentSeed) Validate() error {
	id := types.AgentID(s.ID)
	if err := id.Validate(); err != nil {
		return goerr.Wrap(err, "invalid agent ID")
	}
	if s.Name == "" {
		return goerr.Wrap(ErrMissingName, "agent name is required", goerr.V(AgentIDKey, s.ID))
	}
	if s.OwnerID == "" {
		return goerr.New("agent owner_id is required", goerr.V(AgentIDKey, s.ID))
	}
	if s.Policy != nil {
		if _, err := s.Config(); err != nil {
			return err
		}
	}
	return nil
}

// Agent converts the seed to its domain agent
func (s *AgentSeed) Agent() *model.Agent {
	return &model.Agent{
		ID:      types.AgentID(s.ID),
		OwnerID: types.ViewerID(s.OwnerID),
		Name:    s.Name,
		Persona: s.Persona,
	}
}

// Config builds the seeded answering policy: the default policy with the
// declared overrides applied. Returns nil when the seed has no policy
// section.
func (s *AgentSeed) Config() (*model.AgentConfig, error) {
	if s.Policy == nil {
		return nil, nil
	}

	cfg := model.DefaultAgentConfig(types.AgentID(s.ID))
	p := s.Policy

	if p.AnswerEnabled != nil {
		cfg.AnswerEnabled = *p.AnswerEnabled
	}
	if p.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.ReuseThreshold != nil {
		cfg.ReuseThreshold = *p.ReuseThreshold
	}
	if p.MergeThreshold != nil {
		cfg.MergeThreshold = *p.MergeThreshold
	}
	if p.ClarificationEnabled != nil {
		cfg.ClarificationEnabled = *p.ClarificationEnabled
	}
	if p.EscalationEnabled != nil {
		cfg.EscalationEnabled = *p.EscalationEnabled
	}
	if p.EscalationDailyCap != nil {
		cfg.EscalationDailyCap = *p.EscalationDailyCap
	}
	if p.EscalationWeeklyCap != nil {
		cfg.EscalationWeeklyCap = *p.EscalationWeeklyCap
	}
	if p.BlockedTopics != nil {
		cfg.BlockedTopics = p.BlockedTopics
	}
	if p.AllowedTiers != nil {
		tiers := make([]types.ViewerTier, 0, len(p.AllowedTiers))
		for _, raw := range p.AllowedTiers {
			tier, err := types.ParseViewerTier(raw)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid allowed tier", goerr.V(AgentIDKey, s.ID))
			}
			tiers = append(tiers, tier)
		}
		cfg.AllowedTiers = tiers
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid agent policy", goerr.V(AgentIDKey, s.ID))
	}
	return cfg, nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	agentIDs := make(map[string]bool)
	for i, seed := range a.Agents {
		if err := seed.Validate(); err != nil {
			return goerr.Wrap(err, "invalid agent seed", goerr.V(AgentIndexKey, i))
		}
		if agentIDs[seed.ID] {
			return goerr.Wrap(ErrDuplicateAgentID, "duplicate agent ID", goerr.V(AgentIDKey, seed.ID))
		}
		agentIDs[seed.ID] = true
	}
	return nil
}

// LoadAppConfiguration loads the application configuration from a TOML file
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "failed to read config file", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &config, nil
}
