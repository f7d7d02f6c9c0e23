package completion

import (
	"strings"

	"github.com/aretw0/anamnesis/pkg/ports"
)

// Separator divides the interim narrative from its follow-up question.
const Separator = "\n---\n"

// questionLabels are matched case-insensitively at the start of a line.
var questionLabels = []string{"вопрос:", "уточняющий вопрос:", "question:"}

// ParseInterim splits a raw interim response into the narrative and the
// optional follow-up question.
func ParseInterim(text string) ports.Interim {
	if before, after, found := strings.Cut(text, Separator); found {
		return ports.Interim{
			Reply:    strings.TrimSpace(before),
			FollowUp: strings.TrimSpace(after),
		}
	}

	trimmed := strings.TrimSpace(text)
	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if !hasQuestionLabel(lines[i]) {
			continue
		}
		_, q, _ := strings.Cut(lines[i], ":")
		return ports.Interim{
			Reply:    strings.TrimSpace(strings.Join(lines[:i], "\n")),
			FollowUp: strings.TrimSpace(q),
		}
	}

	return ports.Interim{Reply: trimmed}
}

// ComposeInterim joins the narrative and follow-up back with the separator.
func ComposeInterim(in ports.Interim) string {
	if in.FollowUp == "" {
		return in.Reply
	}
	return in.Reply + Separator + in.FollowUp
}

func hasQuestionLabel(line string) bool {
	low := strings.ToLower(strings.TrimRight(line, "\r"))
	for _, label := range questionLabels {
		if strings.HasPrefix(low, label) {
			return true
		}
	}
	return false
}
