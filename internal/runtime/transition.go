package runtime

import (
	"strings"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// Step is the outcome of applying one message to one state.
type Step struct {
	// Next is the state the session moves to.
	Next domain.State
	// Prompt is the fixed question for Next. Empty when a checkpoint supplies the reply.
	Prompt string
	// Data is a fresh copy of the session data with this step's field written.
	Data map[string]string
	// Checkpoint asks the caller to run a generation call before committing.
	Checkpoint domain.Checkpoint
	// Anomalous is set when the input state was not recognised and the step reset the session.
	Anomalous bool
}

// Start returns the step that opens a new session.
func Start() Step {
	return Step{
		Next:   domain.InitialState,
		Prompt: Prompt(domain.InitialState),
		Data:   make(map[string]string),
	}
}

// Transition applies one inbound message to state.
// It is pure and total: data is never mutated and every state maps to a step.
func Transition(state domain.State, input string, data map[string]string) Step {
	msg := strings.TrimSpace(input)
	out := domain.CopyData(data)

	switch state {
	case domain.StateEnterDiagnosis:
		out[domain.FieldDiagnosis] = strings.ToLower(msg)
		return advance(domain.StateEnterAnalyses, out)

	case domain.StateEnterAnalyses:
		if msg == "" {
			msg = domain.NoAnalyses
		}
		out[domain.FieldAnalyses] = msg
		return advance(domain.StateEnterSymptoms, out)

	case domain.StateEnterSymptoms:
		out[domain.FieldSymptoms] = msg
		return advance(domain.StateEnterOnset, out)

	case domain.StateEnterOnset:
		out[domain.FieldOnset] = msg
		return advance(domain.StateEnterContext, out)

	case domain.StateEnterContext:
		out[domain.FieldContext] = msg
		return advance(domain.StateEnterPsycho, out)

	case domain.StateEnterPsycho:
		out[domain.FieldPsychoState] = msg
		return advance(domain.StateEnterLifeEvents, out)

	case domain.StateEnterLifeEvents:
		out[domain.FieldLifeEvents] = msg
		return Step{Next: domain.StateWaitFollowUp, Data: out, Checkpoint: domain.CheckpointInterim}

	case domain.StateWaitFollowUp:
		out[domain.FieldFollowUpAnswer] = msg
		return advance(domain.StateDeepQ1, out)

	case domain.StateDeepQ1:
		out[domain.FieldDeepQ1] = msg
		return advance(domain.StateDeepQ2, out)

	case domain.StateDeepQ2:
		out[domain.FieldDeepQ2] = msg
		return advance(domain.StateDeepQ3, out)

	case domain.StateDeepQ3:
		out[domain.FieldDeepQ3] = msg
		return advance(domain.StateDeepQ4, out)

	case domain.StateDeepQ4:
		out[domain.FieldDeepQ4] = msg
		return Step{Next: domain.StateDone, Data: out, Checkpoint: domain.CheckpointFinal}
	}

	// Unknown states and done restart the questionnaire from scratch.
	s := Start()
	s.Anomalous = true
	return s
}

func advance(next domain.State, data map[string]string) Step {
	return Step{Next: next, Prompt: Prompt(next), Data: data}
}
