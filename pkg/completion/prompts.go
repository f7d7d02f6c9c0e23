package completion

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// Prompt set names.
const (
	PromptSetStandard = "standard"
	PromptSetPNEI     = "pnei"
)

// Placeholders for values the user never gave.
const (
	absent           = "—"
	unknownDiagnosis = "не указан"
)

// PromptSet is a system instruction plus the two checkpoint templates.
type PromptSet struct {
	Name   string
	System string

	// Per-checkpoint temperature overrides. Nil means the client default.
	InterimTemperature *float64
	FinalTemperature   *float64

	// IncludeInterimContext embeds the interim narrative in the final prompt.
	IncludeInterimContext bool

	interim *template.Template
	final   *template.Template
}

// promptValues feeds the templates. Every field is already defaulted.
type promptValues struct {
	Diagnosis       string
	Symptoms        string
	Onset           string
	Context         string
	Analyses        string
	AnalysisDetails string
	PsychoState     string
	LifeEvents      string
	FollowUpAnswer  string
	DeepQ1          string
	DeepQ2          string
	DeepQ3          string
	DeepQ4          string
	InterimReply    string
}

func valuesFrom(data map[string]string) promptValues {
	get := func(key string) string {
		if v := strings.TrimSpace(data[key]); v != "" {
			return v
		}
		return absent
	}

	v := promptValues{
		Diagnosis:       get(domain.FieldDiagnosis),
		Symptoms:        get(domain.FieldSymptoms),
		Onset:           get(domain.FieldOnset),
		Context:         get(domain.FieldContext),
		Analyses:        get(domain.FieldAnalyses),
		AnalysisDetails: absent,
		PsychoState:     get(domain.FieldPsychoState),
		LifeEvents:      get(domain.FieldLifeEvents),
		FollowUpAnswer:  get(domain.FieldFollowUpAnswer),
		DeepQ1:          get(domain.FieldDeepQ1),
		DeepQ2:          get(domain.FieldDeepQ2),
		DeepQ3:          get(domain.FieldDeepQ3),
		DeepQ4:          get(domain.FieldDeepQ4),
		InterimReply:    get(domain.FieldInterimReply),
	}
	if v.Diagnosis == absent {
		v.Diagnosis = unknownDiagnosis
	}
	return v
}

// RenderInterim builds the user prompt for the interim checkpoint.
func (p PromptSet) RenderInterim(data map[string]string) (string, error) {
	return render(p.interim, data)
}

// RenderFinal builds the user prompt for the final checkpoint.
func (p PromptSet) RenderFinal(data map[string]string) (string, error) {
	return render(p.final, data)
}

func render(t *template.Template, data map[string]string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("prompt template is not configured")
	}
	var b strings.Builder
	if err := t.Execute(&b, valuesFrom(data)); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}

// PromptSetByName returns a built-in prompt set.
func PromptSetByName(name string) (PromptSet, error) {
	switch name {
	case "", PromptSetStandard:
		return StandardPrompts(), nil
	case PromptSetPNEI:
		return PNEIPrompts(), nil
	default:
		return PromptSet{}, fmt.Errorf("unknown prompt set %q", name)
	}
}

// StandardPrompts is the general health and self-perception assistant.
func StandardPrompts() PromptSet {
	return PromptSet{
		Name:    PromptSetStandard,
		System:  standardSystem,
		interim: template.Must(template.New("interim").Parse(standardInterim)),
		final:   template.Must(template.New("final").Parse(standardFinal)),
	}
}

// PNEIPrompts frames the narrative in psycho-neuro-endocrine-immune terms and
// carries the interim narrative into the final prompt as context.
func PNEIPrompts() PromptSet {
	interimT, finalT := 0.6, 0.8
	return PromptSet{
		Name:                  PromptSetPNEI,
		System:                pneiSystem,
		InterimTemperature:    &interimT,
		FinalTemperature:      &finalT,
		IncludeInterimContext: true,
		interim:               template.Must(template.New("interim").Parse(pneiInterim)),
		final:                 template.Must(template.New("final").Parse(pneiFinal)),
	}
}

const disclaimer = "❗ Это не медицинская консультация. При ухудшении состояния обратитесь к врачу."

const standardSystem = `Ты — внимательный и чуткий помощник по здоровью и самоощущению. Твоя задача — помогать человеку понять его состояние
с двух сторон: медицинской (куда обратиться, что проверить, какие вопросы задать врачу) и психоэмоциональной
(как стресс, переживания и внутренние конфликты могут отражаться в теле).

Тон: тёплый, поддерживающий, без категоричных утверждений и постановки диагнозов. Пиши чистым текстом, без звёздочек,
без жирного/курсива и без markdown. Будь конкретным и практичным.

Структура ответа (сохраняй заголовки и порядок):
1) Карта возможных причин
   Кратко и по делу: какие медицинские и какие психоэмоциональные механизмы могут объяснять описанные проявления.
   Дай несколько вариантов, если данных мало.

2) Что у вас совпадает
   Сделай связку с рассказом пользователя: укажи, какие детали его истории поддерживают те или иные объяснения.

3) Куда обратиться
   Подскажи, к каким специалистам имеет смысл пойти сначала и почему. Приведи пример базовых обследований/анализов,
   которые обычно помогают прояснить картину. Если есть понятный первичный маршрут — укажи его.

4) Красные флаги — срочно к врачу
   Перечисли симптомы и ситуации, при которых важно немедленно обратиться за медицинской помощью.
   Не запугивай, просто поясни, почему это важно.

5) Шаги самопомощи
   Дай простые действия на ближайшие 1–2 недели: краткая дыхательная практика (как делать и сколько минут),
   мягкая телесная поддержка/режим, идеи для дневника/рефлексии (3 вопроса), короткая привычка для стабилизации.

6) Метафоры и образы симптома
   Дай 2–3 образа, которые помогают почувствовать смысл телесной реакции и найти свой язык для разговора с собой.

7) Для разговора с врачом
   Сформулируй 3–5 корректных вопросов/наблюдений, которые помогут на приёме, без постановки диагноза.

8) Итог и следующий шаг
   Одним абзацем: что главное вынести сейчас и какой первый шаг сделать.

В конце добавь строку:
` + disclaimer

const interimFacts = `Пользователь рассказал о своём состоянии.
Диагноз: {{.Diagnosis}}
Симптомы: {{.Symptoms}}
Когда началось: {{.Onset}}
Контекст: {{.Context}}
Анализы: {{.Analyses}}
Детали анализов: {{.AnalysisDetails}}
Эмоциональный фон: {{.PsychoState}}
Важные события: {{.LifeEvents}}
`

const standardInterim = interimFacts + `
Сформируй ответ строго в заданной структуре (8 разделов), без markdown и без звёздочек.
В каждом разделе будь конкретным и практичным. В разделе «Куда обратиться» предложи первичный маршрут и базовые обследования.
В разделе «Красные флаги» укажи ситуации, когда нужна срочная помощь. В конце добавь обязательную финальную строку-предупреждение.
Заверши одним коротким уточняющим вопросом на отдельной строке после разделителя ` + Separator + `.`

const standardFinal = `Дополнительные ответы пользователя.
Ответ на уточняющий вопрос: {{.FollowUpAnswer}}
Что изменилось до симптома: {{.DeepQ1}}
Ситуации, где чувство сильнее: {{.DeepQ2}}
Образ/метафора симптома: {{.DeepQ3}}
Опыт «не смог(ла) переварить/удержать/выразить»: {{.DeepQ4}}

Сформируй итоговый ответ строго в той же структуре (8 разделов), без markdown и без звёздочек.
Усиль практичность:
- в «Куда обратиться» уточни маршрут (к кому сперва, что уточнить) и базовые обследования по симптомам;
- в «Красные флаги» перечисли ситуации для срочной помощи;
- в «Шаги самопомощи» добавь две дыхательные практики с длительностью, одну мягкую телесную практику на 5–7 минут и 3 вопроса для дневника;
- в «Для разговора с врачом» сформулируй 3–5 конкретных вопросов.
Закончить обязательной строкой-предупреждением.`

const pneiSystem = `Ты — внимательный и чуткий помощник по здоровью и самоощущению. Твоя задача — помогать человеку понять его состояние
с двух сторон: медицинской (куда обратиться, что проверить, какие вопросы задать врачу) и психоэмоциональной
(как стресс, переживания и внутренние конфликты могут отражаться в теле).

Рабочая рамка: опирайся на PNEI (психо-нейро-эндокрино-иммунные связи). Объясняй, как стресс и регуляция через нервную систему,
гормональные оси (например, HPA) и иммунитет могут влиять на симптомы. Не ставь диагнозы.

Политика:
— Не используй «Германскую новую медицину (ГНМ)» как медицинскую модель и не давай по ней рекомендаций.
  Если пользователь её упоминает, нейтрально отметь, что ГНМ не имеет научной валидности и не применяется в доказательной медицине.
  ГНМ-термины допустимы только как метафоры переживаний (образ/смысл), но медицинские выводы — строго в рамках PNEI/доказательного подхода.
— Избегай категоричности. Пиши простым текстом, без звёздочек, без жирного/курсива и без markdown.

Структура ответа (сохраняй заголовки и порядок):
1) Карта возможных причин
   Кратко и по делу: какие медицинские и какие психоэмоциональные механизмы могут объяснять проявления.
   Обязательно свяжи с рамкой PNEI (нервная регуляция, стресс-гормоны/сон/ритмы/иммунные реакции).

2) Что у вас совпадает
   Связка с рассказом пользователя: 2–4 точных наблюдения, какие детали поддерживают эти объяснения.

3) Куда обратиться
   К каким специалистам пойти сначала и почему. Базовые обследования/анализы, которые проясняют картину.
   Если есть понятный первичный маршрут — укажи его.

4) Красные флаги — срочно к врачу
   Симптомы/ситуации, при которых нужна немедленная помощь, с кратким объяснением.

5) Шаги самопомощи
   Простые действия на 1–2 недели: дыхательная практика (как делать, сколько минут),
   мягкая телесная поддержка/режим, 3 вопроса для дневника, короткая стабилизирующая привычка.
   Отрази PNEI-логику (сон/ритмы, нагрузка, питание, стресс-менеджмент).

6) Метафоры и образы симптома
   2–3 образа, помогающих почувствовать смысл реакции и говорить с собой своим языком.

7) Для разговора с врачом
   3–5 корректных вопросов/наблюдений, которые помогут на приёме, без постановки диагноза.

8) Итог и следующий шаг
   Одним абзацем: что главное вынести сейчас и какой первый шаг сделать.

В конце добавь строку:
` + disclaimer

const pneiInterim = interimFacts + `
Сформируй ответ строго в заданной структуре (8 разделов), без markdown и без звёздочек.
Используй рамку PNEI (нервная регуляция, стресс-гормоны/HPA, иммунитет, сон/ритмы).
Не используй ГНМ как медицинскую модель; если пользователь её упомянет — кратко отметь недоказанность и при желании
оставь только как метафору (без медицинских выводов).

В «Куда обратиться» предложи первичный маршрут и базовые обследования.
В «Красные флаги» укажи ситуации для срочной помощи. В конце добавь финальную строку-предупреждение.

Заверши ОДНИМ очень коротким уточняющим вопросом (до 12 слов) — на отдельной строке после разделителя
---
пример: «Что усиливает это ощущение чаще всего?».`

const pneiFinal = `Это продолжение консультации. Ниже — первый ответ помощника (для контекста), а затем — новые ответы пользователя.
Первый ответ (НЕ повторяй его, используй только как базу):
<<<ПЕРВЫЙ_ОТВЕТ
{{.InterimReply}}
ПЕРВЫЙ_ОТВЕТ>>>

Новые ответы пользователя:
— Ответ на уточняющий вопрос: {{.FollowUpAnswer}}
— Что изменилось до симптома: {{.DeepQ1}}
— Ситуации, где чувство сильнее: {{.DeepQ2}}
— Образ/метафора симптома: {{.DeepQ3}}
— Опыт «не смог(ла) переварить/удержать/выразить»: {{.DeepQ4}}

Сделай обновлённый разбор в той же структуре, добавив в начале раздел «0) Дополнения к разбору» (3–6 пунктов: что изменилось по сравнению с первым ответом).
Опирайся на рамку PNEI. Не используй ГНМ как медицинскую модель; если она упомянута — максимум как метафора с явным предупреждением о недоказанности.
В «Куда обратиться» — чёткий маршрут и приоритетные обследования (зачем именно). В «Шаги самопомощи» — 2 дыхательные практики с длительностью,
1 мягкая телесная практика на 5–7 минут, 3 персонализированных вопроса для дневника. Если новые данные мало меняют выводы — скажи это явно.

В конце добавь строку:
` + disclaimer
