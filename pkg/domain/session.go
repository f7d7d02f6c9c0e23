package domain

import (
	"maps"
	"time"
)

// Captured field names.
const (
	FieldDiagnosis      = "diagnosis"
	FieldAnalyses       = "analyses"
	FieldSymptoms       = "symptoms"
	FieldOnset          = "onset"
	FieldContext        = "context"
	FieldPsychoState    = "psycho_state"
	FieldLifeEvents     = "life_events"
	FieldFollowUpAnswer = "follow_up_answer"
	FieldDeepQ1         = "deep_q1"
	FieldDeepQ2         = "deep_q2"
	FieldDeepQ3         = "deep_q3"
	FieldDeepQ4         = "deep_q4"

	// Generation results, written once each at their checkpoint.
	FieldInterimReply = "gpt_reply"
	FieldFollowUp     = "follow_up"
	FieldFinalReply   = "final"
)

// NoAnalyses is stored when the user skips the analyses step.
const NoAnalyses = "нет"

// Session is the live conversation for one id.
type Session struct {
	ID        string            `json:"id"`
	State     State             `json:"state"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession creates a session in the initial state with empty data.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     InitialState,
		Data:      make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a deep copy so stores never share maps with callers.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = CopyData(s.Data)
	return &out
}

// CopyData clones a data map, always returning a non-nil map.
func CopyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	maps.Copy(out, data)
	return out
}
