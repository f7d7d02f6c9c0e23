package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Answers holds every field captured during a session.
type Answers struct {
	Diagnosis      string `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty" mapstructure:"diagnosis"`
	Analyses       string `json:"analyses,omitempty" yaml:"analyses,omitempty" mapstructure:"analyses"`
	Symptoms       string `json:"symptoms,omitempty" yaml:"symptoms,omitempty" mapstructure:"symptoms"`
	Onset          string `json:"onset,omitempty" yaml:"onset,omitempty" mapstructure:"onset"`
	Context        string `json:"context,omitempty" yaml:"context,omitempty" mapstructure:"context"`
	PsychoState    string `json:"psycho_state,omitempty" yaml:"psycho_state,omitempty" mapstructure:"psycho_state"`
	LifeEvents     string `json:"life_events,omitempty" yaml:"life_events,omitempty" mapstructure:"life_events"`
	FollowUpAnswer string `json:"follow_up_answer,omitempty" yaml:"follow_up_answer,omitempty" mapstructure:"follow_up_answer"`
	DeepQ1         string `json:"deep_q1,omitempty" yaml:"deep_q1,omitempty" mapstructure:"deep_q1"`
	DeepQ2         string `json:"deep_q2,omitempty" yaml:"deep_q2,omitempty" mapstructure:"deep_q2"`
	DeepQ3         string `json:"deep_q3,omitempty" yaml:"deep_q3,omitempty" mapstructure:"deep_q3"`
	DeepQ4         string `json:"deep_q4,omitempty" yaml:"deep_q4,omitempty" mapstructure:"deep_q4"`

	InterimReply string `json:"gpt_reply,omitempty" yaml:"gpt_reply,omitempty" mapstructure:"gpt_reply"`
	FollowUp     string `json:"follow_up,omitempty" yaml:"follow_up,omitempty" mapstructure:"follow_up"`
}

// Record is one completed session as handed to the record store.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Answers   Answers   `json:"answers" yaml:"answers"`
	Final     string    `json:"final" yaml:"final"`
}

// RecordFromSession builds the record for a session that reached the terminal state.
// Unknown data keys are ignored.
func RecordFromSession(id, userID string, s *Session) (Record, error) {
	rec := Record{
		ID:        id,
		UserID:    userID,
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		Final:     s.Data[FieldFinalReply],
	}
	if rec.UserID == "" {
		rec.UserID = s.ID
	}
	if err := mapstructure.Decode(s.Data, &rec.Answers); err != nil {
		return Record{}, fmt.Errorf("failed to decode session data: %w", err)
	}
	return rec, nil
}

// Summary renders the short review shown when a user revisits their last session.
func (r Record) Summary() string {
	reply := r.Final
	if reply == "" {
		reply = r.Answers.InterimReply
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📌 Симптомы: %s\n", orDash(r.Answers.Symptoms))
	fmt.Fprintf(&b, "🕒 Когда началось: %s\n", orDash(r.Answers.Onset))
	fmt.Fprintf(&b, "⚙️ Контекст: %s\n", orDash(r.Answers.Context))
	fmt.Fprintf(&b, "📋 Анализы: %s\n", orDash(r.Answers.Analyses))
	fmt.Fprintf(&b, "🧠 Эмоц. фон: %s\n", orDash(r.Answers.PsychoState))
	fmt.Fprintf(&b, "🌍 События: %s\n\n", orDash(r.Answers.LifeEvents))
	fmt.Fprintf(&b, "🧠 Ответ:\n%s", orDash(reply))
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}
