// Package progress отвечает на два вопроса навигации мастера: на каком шаге
// пользователь находится и достижим ли запрошенный шаг. Правило достижимости
// намеренно локальное: шаг N доступен, только если завершён шаг N-1.
package progress

import (
	"github.com/stuhub/experience-system/internal/model"
)

// StepCount — число шагов мастера.
var StepCount = len(model.Steps)

// Number возвращает порядковый номер шага, начиная с 1; 0 для неизвестного шага.
func Number(step model.StepType) int {
	for i, s := range model.Steps {
		if s == step {
			return i + 1
		}
	}
	return 0
}

// StepAt возвращает шаг по порядковому номеру.
func StepAt(n int) (model.StepType, bool) {
	if n < 1 || n > len(model.Steps) {
		return "", false
	}
	return model.Steps[n-1], true
}

func contains(completed []string, step model.StepType) bool {
	for _, s := range completed {
		if s == string(step) {
			return true
		}
	}
	return false
}

// Reachable сообщает, достижим ли шаг с номером n. Первый шаг достижим всегда;
// шаг n>1 — только если в completed есть именно предыдущий шаг. Завершённость
// более поздних шагов раннюю дыру в цепочке не закрывает.
func Reachable(n int, completed []string) bool {
	if n == 1 {
		return true
	}
	if n < 1 || n > len(model.Steps) {
		return false
	}
	return contains(completed, model.Steps[n-2])
}

// Current вычисляет текущий номер шага: подсказка current имеет приоритет,
// иначе берётся первый незавершённый шаг цепочки.
func Current(completed []string, current model.StepType) int {
	if n := Number(current); n > 0 {
		return n
	}
	for i, s := range model.Steps {
		if !contains(completed, s) {
			return i + 1
		}
	}
	return len(model.Steps)
}

// Decision — решение охранника шага для хоста интерфейса.
type Decision struct {
	Allow      bool
	RedirectTo model.StepType
}

// GuardStep решает, можно ли показать страницу шага required. Пока данные
// грузятся, решение откладывается (Allow без редиректа): охранник срабатывает
// заново, когда completed известны. Недостижимый шаг перенаправляет на первый.
func GuardStep(required int, loading bool, completed []string) Decision {
	if loading {
		return Decision{Allow: true}
	}
	if required > 1 && !Reachable(required, completed) {
		return Decision{Allow: false, RedirectTo: model.Steps[0]}
	}
	return Decision{Allow: true}
}

// SubmissionView — решение охранника отправки.
type SubmissionView int

const (
	// ViewPlaceholder — данные ещё грузятся, показывается заглушка.
	ViewPlaceholder SubmissionView = iota
	// ViewTerminal — анкета отправлена, показывается финальный экран без
	// возврата в режим редактирования.
	ViewTerminal
	// ViewRender — можно показывать редактирующую страницу.
	ViewRender
)

// GuardSubmission решает, что показывать вместо редактирующей страницы.
// Это точка, где инвариант неизменяемости отправленной анкеты применяется
// до того, как изменяющая страница вообще появится.
func GuardSubmission(loading bool, status model.Status) SubmissionView {
	if loading {
		return ViewPlaceholder
	}
	if status == model.StatusSubmitted {
		return ViewTerminal
	}
	return ViewRender
}
