package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExecContext — контекст выполнения одного run.
// Results хранит результаты уже зафиксированных шагов по имени шага.
type ExecContext struct {
	RunID   uuid.UUID
	Input   map[string]any
	Results map[string]map[string]any
}

// StepFunc выполняет шаг и возвращает его результат.
// Результат фиксируется в журнале и не должен меняться при replay.
type StepFunc func(ctx context.Context, ec *ExecContext) (map[string]any, error)

// RegisterFunc выполняет побочный эффект регистрации wait-шага:
// получает свежий callback id и доносит его до внешнего мира
// (письмо со ссылкой, запись в профиле и т.п.).
type RegisterFunc func(ctx context.Context, ec *ExecContext, callbackID uuid.UUID) error

// WaitSpec описывает точку приостановки шага.
type WaitSpec struct {
	// Timeout — срок жизни callback'а; по его истечении run
	// завершается в TIMED_OUT.
	Timeout time.Duration

	// OnRegister вызывается один раз на run, вместе с регистрацией
	// callback'а, и мемоизируется как единый побочный эффект.
	OnRegister RegisterFunc
}

// Step — один шаг определения.
//
// Обычный шаг имеет только Run. Wait-шаг имеет WaitSpec: его Run не
// вызывается, результатом шага становится результат разрешения
// callback'а.
type Step struct {
	Name string
	Run  StepFunc
	Wait *WaitSpec

	// Retry — политика повторов шага; nil — политика по умолчанию.
	Retry *RetryPolicy
}

// Definition — определение workflow: упорядоченный список шагов.
// Имена шагов уникальны внутри определения.
type Definition struct {
	ID    string
	Steps []Step
}
