package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

// DefaultPIIPatterns match e-mail addresses and phone numbers typed into free-text answers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`\+?\d(?:[\s\-()]*\d){9,}`,
}

type piiMiddleware struct {
	next     ports.RecordStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks text matching the patterns
// in every answer and in the generated replies before the record is stored.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.RecordStore) ports.RecordStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

// Record is passed by value, so masking never touches the caller's copy.
func (m *piiMiddleware) Save(ctx context.Context, record domain.Record) error {
	for _, field := range textFields(&record) {
		*field = m.mask(*field)
	}
	return m.next.Save(ctx, record)
}

func (m *piiMiddleware) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	return m.next.ListByUser(ctx, userID, limit)
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func textFields(r *domain.Record) []*string {
	a := &r.Answers
	return []*string{
		&a.Diagnosis, &a.Analyses, &a.Symptoms, &a.Onset, &a.Context,
		&a.PsychoState, &a.LifeEvents, &a.FollowUpAnswer,
		&a.DeepQ1, &a.DeepQ2, &a.DeepQ3, &a.DeepQ4,
		&a.InterimReply, &a.FollowUp,
		&r.Final,
	}
}
