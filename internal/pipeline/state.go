package pipeline

// State is the position of a sample in the stage machine. Terminal states
// are Accepted, Rejected and Failed.
type State int

const (
	StateStart State = iota
	StateProblemGenerated
	StateToolCallGenerated
	StateJudged
	StateAccepted
	StateRejected
	StateFailed
)

var stateNames = [...]string{
	StateStart:             "start",
	StateProblemGenerated:  "problem_generated",
	StateToolCallGenerated: "tool_call_generated",
	StateJudged:            "judged",
	StateAccepted:          "accepted",
	StateRejected:          "rejected",
	StateFailed:            "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// CanAdvance reports whether to directly follows s. A rejected sample may
// start over with a fresh problem.
func (s State) CanAdvance(to State) bool {
	switch s {
	case StateStart, StateRejected:
		return to == StateProblemGenerated
	case StateProblemGenerated:
		return to == StateToolCallGenerated
	case StateToolCallGenerated:
		return to == StateJudged
	case StateJudged:
		return to == StateAccepted || to == StateRejected
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected || s == StateFailed
}
