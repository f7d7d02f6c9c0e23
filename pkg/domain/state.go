package domain

import "fmt"

// State is a position in the questionnaire.
// The zero value is not a valid state.
type State int

const (
	StateUnknown State = iota
	StateEnterDiagnosis
	StateEnterAnalyses
	StateEnterSymptoms
	StateEnterOnset
	StateEnterContext
	StateEnterPsycho
	StateEnterLifeEvents
	StateWaitFollowUp
	StateDeepQ1
	StateDeepQ2
	StateDeepQ3
	StateDeepQ4
	StateDone
)

// InitialState is where every new session starts.
const InitialState = StateEnterDiagnosis

var stateNames = map[State]string{
	StateEnterDiagnosis:  "enter_diagnosis",
	StateEnterAnalyses:   "enter_analyses",
	StateEnterSymptoms:   "enter_symptoms",
	StateEnterOnset:      "enter_onset",
	StateEnterContext:    "enter_context",
	StateEnterPsycho:     "enter_psycho",
	StateEnterLifeEvents: "enter_life_events",
	StateWaitFollowUp:    "wait_followup",
	StateDeepQ1:          "deep_q1",
	StateDeepQ2:          "deep_q2",
	StateDeepQ3:          "deep_q3",
	StateDeepQ4:          "deep_q4",
	StateDone:            "done",
}

// States returns every valid state in forward order.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for s := StateEnterDiagnosis; s <= StateDone; s++ {
		out = append(out, s)
	}
	return out
}

// String returns the wire name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s belongs to the closed set.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// Terminal reports whether no further steps are valid from s.
func (s State) Terminal() bool {
	return s == StateDone
}

// ParseState maps a wire name back to its State.
// Unknown names yield StateUnknown, which the transition table treats as a reset.
func ParseState(name string) State {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return StateUnknown
}

// MarshalText encodes the state by name so stored sessions stay readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unknown names decode to StateUnknown
// rather than failing, so a stale or corrupted session still loads and resets.
func (s *State) UnmarshalText(text []byte) error {
	*s = ParseState(string(text))
	return nil
}

// Checkpoint is the signal raised when a transition requires generation.
type Checkpoint string

const (
	CheckpointNone    Checkpoint = ""
	CheckpointInterim Checkpoint = "interim-assessment"
	CheckpointFinal   Checkpoint = "final-assessment"
)
