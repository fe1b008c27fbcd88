package model_test

import (
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func TestDefaultAgentConfig(t *testing.T) {
	cfg := model.DefaultAgentConfig("mira")
	gt.NoError(t, cfg.Validate())
	gt.B(t, cfg.AnswerEnabled).True()
	gt.B(t, cfg.ClarificationEnabled).True()
	gt.B(t, cfg.EscalationEnabled).True()
	gt.Number(t, cfg.ConfidenceThreshold).Equal(model.DefaultConfidenceThreshold)
	gt.V(t, cfg.ReuseThreshold).Equal(model.DefaultReuseThreshold)
	gt.V(t, cfg.MergeThreshold).Equal(model.DefaultMergeThreshold)
}

func TestAgentConfig_Validate(t *testing.T) {
	valid := func() *model.AgentConfig {
		return model.DefaultAgentConfig("mira")
	}

	tests := []struct {
		name    string
		mutate  func(*model.AgentConfig)
		wantErr bool
	}{
		{
			name:    "default config valid",
			mutate:  func(c *model.AgentConfig) {},
			wantErr: false,
		},
		{
			name:    "empty agent ID",
			mutate:  func(c *model.AgentConfig) { c.AgentID = "" },
			wantErr: true,
		},
		{
			name:    "confidence threshold over 100",
			mutate:  func(c *model.AgentConfig) { c.ConfidenceThreshold = 101 },
			wantErr: true,
		},
		{
			name:    "confidence threshold negative",
			mutate:  func(c *model.AgentConfig) { c.ConfidenceThreshold = -1 },
			wantErr: true,
		},
		{
			name:    "confidence threshold at bounds",
			mutate:  func(c *model.AgentConfig) { c.ConfidenceThreshold = 100 },
			wantErr: false,
		},
		{
			name:    "reuse threshold over 1",
			mutate:  func(c *model.AgentConfig) { c.ReuseThreshold = 1.2 },
			wantErr: true,
		},
		{
			name:    "merge threshold negative",
			mutate:  func(c *model.AgentConfig) { c.MergeThreshold = -0.1 },
			wantErr: true,
		},
		{
			name:    "negative daily cap",
			mutate:  func(c *model.AgentConfig) { c.EscalationDailyCap = -1 },
			wantErr: true,
		},
		{
			name:    "negative weekly cap",
			mutate:  func(c *model.AgentConfig) { c.EscalationWeeklyCap = -5 },
			wantErr: true,
		},
		{
			name:    "zero caps allowed",
			mutate:  func(c *model.AgentConfig) { c.EscalationDailyCap = 0; c.EscalationWeeklyCap = 0 },
			wantErr: false,
		},
		{
			name:    "invalid allowed tier",
			mutate:  func(c *model.AgentConfig) { c.AllowedTiers = []types.ViewerTier{"vip"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestAgentConfig_TierAllowed(t *testing.T) {
	cfg := model.DefaultAgentConfig("mira")

	gt.B(t, cfg.TierAllowed(types.TierFollower)).True()
	gt.B(t, cfg.TierAllowed(types.TierPaid)).True()
	gt.B(t, cfg.TierAllowed(types.TierFree)).False()

	cfg.AllowedTiers = nil
	gt.B(t, cfg.TierAllowed(types.TierPaid)).False()

	cfg.AllowedTiers = []types.ViewerTier{types.TierFree}
	// Empty tier normalizes to free
	gt.B(t, cfg.TierAllowed(types.ViewerTier(""))).True()
}
