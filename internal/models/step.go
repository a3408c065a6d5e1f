package models

// Step is the current position of a session in the qualification flow.
type Step string

const (
	StepGreeting          Step = "GREETING"
	StepGetName           Step = "GET_NAME"
	StepQualification     Step = "QUALIFICATION"
	StepCity              Step = "CITY"
	StepPurpose           Step = "PURPOSE"
	StepPropertyOwnership Step = "PROPERTY_OWNERSHIP"
	StepPropertyDetails   Step = "PROPERTY_DETAILS"
	StepRiskCheck         Step = "RISK_CHECK"
	StepAnythingElse      Step = "ANYTHING_ELSE"
	StepClosing           Step = "CLOSING"

	// Terminal markers.
	StepCompleted Step = "COMPLETED"
	StepClosed    Step = "CLOSED"
)

// Steps lists every step in flow order, terminal markers last.
var Steps = []Step{
	StepGreeting,
	StepGetName,
	StepQualification,
	StepCity,
	StepPurpose,
	StepPropertyOwnership,
	StepPropertyDetails,
	StepRiskCheck,
	StepAnythingElse,
	StepClosing,
	StepCompleted,
	StepClosed,
}

// successors holds the happy-path transition for each non-terminal step.
// PROPERTY_OWNERSHIP may also skip to RISK_CHECK and QUALIFICATION may close.
var successors = map[Step]Step{
	StepGreeting:          StepGetName,
	StepGetName:           StepQualification,
	StepQualification:     StepCity,
	StepCity:              StepPurpose,
	StepPurpose:           StepPropertyOwnership,
	StepPropertyOwnership: StepPropertyDetails,
	StepPropertyDetails:   StepRiskCheck,
	StepRiskCheck:         StepAnythingElse,
	StepAnythingElse:      StepClosing,
	StepClosing:           StepCompleted,
}

// IsValid reports whether s is a known step or terminal marker.
func (s Step) IsValid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the conversation.
func (s Step) IsTerminal() bool {
	return s == StepCompleted || s == StepClosed
}

// Next returns the default successor of s. Terminal and unknown steps return themselves.
func (s Step) Next() Step {
	if next, ok := successors[s]; ok {
		return next
	}
	return s
}
