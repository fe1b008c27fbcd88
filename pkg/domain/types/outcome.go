package types

import "fmt"

// Outcome represents the terminal result of handling a single message.
// Exactly one outcome is produced per message.
type Outcome string

const (
	OutcomeAutoAnswered           Outcome = "AUTO_ANSWERED"
	OutcomeCanonicalReused        Outcome = "CANONICAL_REUSED"
	OutcomeEscalationOffered      Outcome = "ESCALATION_OFFERED"
	OutcomeClarificationRequested Outcome = "CLARIFICATION_REQUESTED"
	OutcomeBlocked                Outcome = "BLOCKED"
)

// AllOutcomes returns all valid outcomes
func AllOutcomes() []Outcome {
	return []Outcome{
		OutcomeAutoAnswered,
		OutcomeCanonicalReused,
		OutcomeEscalationOffered,
		OutcomeClarificationRequested,
		OutcomeBlocked,
	}
}

// IsValid checks if the outcome is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeAutoAnswered,
		OutcomeCanonicalReused,
		OutcomeEscalationOffered,
		OutcomeClarificationRequested,
		OutcomeBlocked:
		return true
	default:
		return false
	}
}

// String returns the string representation of the outcome
func (o Outcome) String() string {
	return string(o)
}

// ParseOutcome parses a string into an Outcome
func ParseOutcome(s string) (Outcome, error) {
	outcome := Outcome(s)
	if !outcome.IsValid() {
		return "", fmt.Errorf("invalid outcome: %s", s)
	}
	return outcome, nil
}
