package model

import "github.com/doppel-lab/keryx/pkg/domain/types"

// Viewer identifies the requester of one message turn. Identity and tier
// are supplied by the upstream auth layer and trusted as-is.
type Viewer struct {
	ID   types.ViewerID
	Tier types.ViewerTier
}
