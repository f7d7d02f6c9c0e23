package completion_test

import (
	"testing"

	"github.com/aretw0/anamnesis/pkg/completion"
	"github.com/aretw0/anamnesis/pkg/ports"
	"github.com/stretchr/testify/assert"
)

func TestParseInterim(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ports.Interim
	}{
		{
			name: "separator",
			in:   "TEXT\n---\nShort question?",
			want: ports.Interim{Reply: "TEXT", FollowUp: "Short question?"},
		},
		{
			name: "separator trims both halves",
			in:   "  1) Карта\n\n---\n  Что усиливает боль?  \n",
			want: ports.Interim{Reply: "1) Карта", FollowUp: "Что усиливает боль?"},
		},
		{
			name: "empty follow-up after separator is absent",
			in:   "TEXT\n---\n   ",
			want: ports.Interim{Reply: "TEXT"},
		},
		{
			name: "only the first separator splits",
			in:   "A\n---\nB\n---\nC",
			want: ports.Interim{Reply: "A", FollowUp: "B\n---\nC"},
		},
		{
			name: "question label",
			in:   "Разбор\nещё строка\nВопрос: X",
			want: ports.Interim{Reply: "Разбор\nещё строка", FollowUp: "X"},
		},
		{
			name: "long label is case-insensitive",
			in:   "Разбор\nУТОЧНЯЮЩИЙ ВОПРОС: Когда хуже?",
			want: ports.Interim{Reply: "Разбор", FollowUp: "Когда хуже?"},
		},
		{
			name: "english label",
			in:   "Body\nQuestion: when?",
			want: ports.Interim{Reply: "Body", FollowUp: "when?"},
		},
		{
			name: "last label wins",
			in:   "вопрос: первый\nтекст\nвопрос: второй\n",
			want: ports.Interim{Reply: "вопрос: первый\nтекст", FollowUp: "второй"},
		},
		{
			name: "no marker",
			in:   "\n  Просто текст без вопроса \n",
			want: ports.Interim{Reply: "Просто текст без вопроса"},
		},
		{
			name: "label mid-line is not a marker",
			in:   "Ваш вопрос: важен",
			want: ports.Interim{Reply: "Ваш вопрос: важен"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, completion.ParseInterim(tt.in))
		})
	}
}

func TestComposeInterim(t *testing.T) {
	assert.Equal(t, "TEXT\n---\nShort question?",
		completion.ComposeInterim(ports.Interim{Reply: "TEXT", FollowUp: "Short question?"}))
	assert.Equal(t, "TEXT", completion.ComposeInterim(ports.Interim{Reply: "TEXT"}))

	raw := "TEXT\n---\nShort question?"
	assert.Equal(t, raw, completion.ComposeInterim(completion.ParseInterim(raw)))
}
