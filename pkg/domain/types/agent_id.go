package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// AgentID represents a unique identifier for a delegate agent
type AgentID string

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks if the AgentID is valid
func (a AgentID) Validate() error {
	if a == "" {
		return goerr.New("agent ID cannot be empty")
	}
	if !idPattern.MatchString(string(a)) {
		return goerr.New("agent ID must be lowercase alphanumeric with hyphens", goerr.V("id", a))
	}
	return nil
}

// String returns the string representation of AgentID
func (a AgentID) String() string {
	return string(a)
}

// ViewerID identifies the person talking to an agent. The value comes from
// the caller's auth layer and is treated as an opaque string.
type ViewerID string

// String returns the string representation of ViewerID
func (v ViewerID) String() string {
	return string(v)
}
