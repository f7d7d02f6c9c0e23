package runtime

import "github.com/aretw0/anamnesis/pkg/domain"

// prompts holds the fixed question shown on entering each state.
// Checkpoint-driven states (wait_followup, done) have no entry: their reply
// comes from the generation service.
var prompts = map[domain.State]string{
	domain.StateEnterDiagnosis: "Есть ли у вас диагноз, который вы бы хотели обсудить?\n\n" +
		"Если да, опишите его, или напишите «нет», если диагноза нет.",
	domain.StateEnterAnalyses: "Хорошо, давайте перейдем к анализам.\n\n" +
		"Есть ли у вас анализы? 📄\n" +
		"— Вы можете прислать фото\n" +
		"— Или ввести текстом (например: «Гемоглобин — 130, Сахар — 5.4»)\n\n" +
		"Если у вас нет анализов, просто напишите «нет».\n\n" +
		"Также, пожалуйста, укажите дату, когда были сданы анализы.",
	domain.StateEnterSymptoms: "Теперь давайте поговорим о симптомах.\n\n" +
		"Какие симптомы беспокоят вас в первую очередь?\n" +
		"Примеры: головная боль, бессонница, тревожность, усталость, боль в животе и т.д.\n" +
		"Напишите ваш симптом в свободной форме.",
	domain.StateEnterOnset: "Когда это началось? Можете указать точную дату или примерно: «месяц назад», «неделю назад» и т.д.",
	domain.StateEnterContext: "Что происходило в вашей жизни в тот момент?\n\n" +
		"Были ли стрессовые события, перемены, конфликты, потери?",
	domain.StateEnterPsycho: "Теперь немного о вашем эмоциональном фоне.\n\n" +
		"Вы бы назвали своё состояние скорее:\n" +
		"— напряжённым\n" +
		"— опустошённым\n" +
		"— тревожным\n" +
		"Или опишите своими словами.",
	domain.StateEnterLifeEvents: "Были ли недавние перемены в вашей жизни?\n\n" +
		"Переезд, развод, потеря близкого человека, увольнение, смена ролей?",
	domain.StateDeepQ1: "Теперь немного глубже. Что изменилось в вашей жизни до появления симптома?",
	domain.StateDeepQ2: "Есть ли ситуации, которые вызывают это же чувство — тревоги, обиды, стеснения?",
	domain.StateDeepQ3: "Если бы ваш симптом был образом или эмоцией — что бы это было?",
	domain.StateDeepQ4: "Когда вы в последний раз чувствовали, что не можете что-то «переварить», «удержать» или «выразить»?",
}

// Prompt returns the fixed prompt registered for s, or "" if s has none.
func Prompt(s domain.State) string {
	return prompts[s]
}

// About and Privacy are the informational texts offered next to the questionnaire.
const (
	About = "Этот бот помогает вам понять возможные психосоматические причины вашего самочувствия. " +
		"Он не ставит диагнозов, но подсказывает, на что обратить внимание, основываясь на вашем физическом, эмоциональном и жизненном фоне."
	Privacy = "Все введённые вами данные используются только для генерации ответа и не сохраняются без вашего согласия. " +
		"Бот не заменяет врача. Вы всегда можете удалить свои данные."
)
