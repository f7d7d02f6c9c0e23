// Package fake provides an offline completion.Backend for demos and tests.
package fake

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/anamnesis/pkg/completion"
)

// FollowUp is the question attached to every interim narrative.
const FollowUp = "Что усиливает это ощущение чаще всего?"

const interimMarker = "Пользователь рассказал о своём состоянии."

// Backend answers without any network call. Interim prompts get a narrative
// plus FollowUp after the separator; final prompts get a closing narrative.
type Backend struct{}

var _ completion.Backend = Backend{}

// Complete returns a canned eight-section narrative.
func (Backend) Complete(ctx context.Context, req completion.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	sections := []string{
		"Карта возможных причин",
		"Что у вас совпадает",
		"Куда обратиться",
		"Красные флаги — срочно к врачу",
		"Шаги самопомощи",
		"Метафоры и образы симптома",
		"Для разговора с врачом",
		"Итог и следующий шаг",
	}
	for i, s := range sections {
		fmt.Fprintf(&b, "%d) %s\n   (демонстрационный ответ)\n\n", i+1, s)
	}
	b.WriteString("❗ Это не медицинская консультация. При ухудшении состояния обратитесь к врачу.")

	if strings.Contains(req.User, interimMarker) {
		return b.String() + completion.Separator + FollowUp, nil
	}
	return b.String(), nil
}
