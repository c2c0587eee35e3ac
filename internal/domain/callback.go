package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallbackRegistration — регистрация callback для приостановленного run.
//
// ID — непрозрачный, неугадываемый токен, который отдаётся внешнему
// триггеру (встраивается в ссылку подтверждения). Он намеренно не
// совпадает с run ID: внешняя ссылка не раскрывает внутреннее адресное
// пространство runs.
//
// Registration принадлежит Callback Registry от создания до разрешения;
// Engine только читает её при возобновлении.
type CallbackRegistration struct {
	// ID — уникальный идентификатор callback.
	ID uuid.UUID `json:"id"`

	// RunID — приостановленный run, который разрешает этот callback.
	RunID uuid.UUID `json:"run_id"`

	// StepName — callback-wait шаг, ожидающий сигнала.
	StepName string `json:"step_name"`

	// Deadline — абсолютное время, после которого регистрация истекает.
	Deadline time.Time `json:"deadline"`

	// Resolved — выставляется ровно один раз: успех или timeout.
	Resolved bool `json:"resolved"`

	// Outcome — исход разрешения (SUCCESS или TIMEOUT). Пуст до разрешения.
	Outcome CallbackOutcome `json:"outcome,omitempty"`

	// Result — payload, переданный при разрешении.
	Result map[string]any `json:"result,omitempty"`

	// ResolvedAt — время разрешения.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// CreatedAt — время регистрации.
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired возвращает true, если дедлайн прошёл.
func (c *CallbackRegistration) IsExpired(now time.Time) bool {
	return now.After(c.Deadline)
}
