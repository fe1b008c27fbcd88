package types_test

import (
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func TestViewerTier_IsValid(t *testing.T) {
	tests := []struct {
		name string
		tier types.ViewerTier
		want bool
	}{
		{
			name: "valid free",
			tier: types.TierFree,
			want: true,
		},
		{
			name: "valid follower",
			tier: types.TierFollower,
			want: true,
		},
		{
			name: "valid paid",
			tier: types.TierPaid,
			want: true,
		},
		{
			name: "invalid tier",
			tier: types.ViewerTier("vip"),
			want: false,
		},
		{
			name: "empty tier",
			tier: types.ViewerTier(""),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want {
				gt.B(t, tt.tier.IsValid()).True()
			} else {
				gt.B(t, tt.tier.IsValid()).False()
			}
		})
	}
}

func TestViewerTier_Normalize(t *testing.T) {
	gt.V(t, types.ViewerTier("").Normalize()).Equal(types.TierFree)
	gt.V(t, types.TierPaid.Normalize()).Equal(types.TierPaid)
}

func TestParseViewerTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.ViewerTier
		wantErr bool
	}{
		{
			name:    "valid free",
			input:   "free",
			want:    types.TierFree,
			wantErr: false,
		},
		{
			name:    "valid follower",
			input:   "follower",
			want:    types.TierFollower,
			wantErr: false,
		},
		{
			name:    "valid paid",
			input:   "paid",
			want:    types.TierPaid,
			wantErr: false,
		},
		{
			name:    "invalid tier",
			input:   "vip",
			want:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseViewerTier(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
				gt.V(t, got).Equal(tt.want)
			}
		})
	}
}

func TestAllViewerTiers(t *testing.T) {
	tiers := types.AllViewerTiers()
	gt.A(t, tiers).Length(3)

	for _, tier := range tiers {
		gt.B(t, tier.IsValid()).
			Describef("Tier %s should be valid", tier).
			True()
	}
}
