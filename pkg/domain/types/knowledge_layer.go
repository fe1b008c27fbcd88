package types

import "fmt"

// KnowledgeLayer represents the sensitivity tier of a knowledge entry.
// Layers are totally ordered: public < friends < intimate. A viewer
// permitted at layer L may read any entry at a layer whose rank is <= L.
type KnowledgeLayer string

const (
	LayerPublic   KnowledgeLayer = "public"
	LayerFriends  KnowledgeLayer = "friends"
	LayerIntimate KnowledgeLayer = "intimate"
)

// AllKnowledgeLayers returns all valid layers in ascending sensitivity order
func AllKnowledgeLayers() []KnowledgeLayer {
	return []KnowledgeLayer{
		LayerPublic,
		LayerFriends,
		LayerIntimate,
	}
}

// IsValid checks if the layer is valid
func (l KnowledgeLayer) IsValid() bool {
	switch l {
	case LayerPublic, LayerFriends, LayerIntimate:
		return true
	default:
		return false
	}
}

// Rank returns the position of the layer in the total order.
// Invalid layers rank below public so they never grant access.
func (l KnowledgeLayer) Rank() int {
	switch l {
	case LayerPublic:
		return 0
	case LayerFriends:
		return 1
	case LayerIntimate:
		return 2
	default:
		return -1
	}
}

// Covers reports whether a viewer permitted at l may read an entry at other.
func (l KnowledgeLayer) Covers(other KnowledgeLayer) bool {
	return other.Rank() >= 0 && other.Rank() <= l.Rank()
}

// Normalize returns the layer, treating empty as LayerPublic
func (l KnowledgeLayer) Normalize() KnowledgeLayer {
	if l == "" {
		return LayerPublic
	}
	return l
}

// String returns the string representation of the layer
func (l KnowledgeLayer) String() string {
	return string(l)
}

// ParseKnowledgeLayer parses a string into a KnowledgeLayer
func ParseKnowledgeLayer(s string) (KnowledgeLayer, error) {
	layer := KnowledgeLayer(s)
	if !layer.IsValid() {
		return "", fmt.Errorf("invalid knowledge layer: %s", s)
	}
	return layer, nil
}

// LayersUpTo returns all valid layers with rank <= max.Rank() in ascending
// order. Used by repositories to pre-filter before similarity ranking.
func LayersUpTo(max KnowledgeLayer) []KnowledgeLayer {
	var layers []KnowledgeLayer
	for _, l := range AllKnowledgeLayers() {
		if max.Covers(l) {
			layers = append(layers, l)
		}
	}
	return layers
}
