package types

import "fmt"

// ViewerTier represents the subscription tier of a viewer as reported by
// the upstream profile service.
type ViewerTier string

const (
	TierFree     ViewerTier = "free"
	TierFollower ViewerTier = "follower"
	TierPaid     ViewerTier = "paid"
)

// AllViewerTiers returns all valid viewer tiers
func AllViewerTiers() []ViewerTier {
	return []ViewerTier{
		TierFree,
		TierFollower,
		TierPaid,
	}
}

// IsValid checks if the viewer tier is valid
func (t ViewerTier) IsValid() bool {
	switch t {
	case TierFree, TierFollower, TierPaid:
		return true
	default:
		return false
	}
}

// Normalize returns the tier, treating empty as TierFree
func (t ViewerTier) Normalize() ViewerTier {
	if t == "" {
		return TierFree
	}
	return t
}

// String returns the string representation of the viewer tier
func (t ViewerTier) String() string {
	return string(t)
}

// ParseViewerTier parses a string into a ViewerTier
func ParseViewerTier(s string) (ViewerTier, error) {
	tier := ViewerTier(s)
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid viewer tier: %s", s)
	}
	return tier, nil
}
