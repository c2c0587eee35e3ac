package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowRun — экземпляр выполнения workflow definition.
//
// Run создаётся триггером (HTTP-запрос на регистрацию) сразу в статусе
// RUNNING и мутируется исключительно Engine'ом: по мере выполнения шагов,
// при приостановке на callback-wait шаге и при возобновлении.
//
// Прогресс шагов хранится отдельно — в step ledger (StepRecord),
// поэтому повторный прогон run после рестарта процесса безопасен.
type WorkflowRun struct {
	// ID — уникальный идентификатор run. Назначается при создании, неизменяем.
	ID uuid.UUID `json:"id"`

	// DefinitionID — какой workflow definition выполняет этот run.
	DefinitionID string `json:"definition_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Input — входной payload, переданный при старте. Неизменяем.
	Input map[string]any `json:"input,omitempty"`

	// PendingCallbackID — callback, которого ожидает run.
	// Установлен только пока Status = SUSPENDED; очищается при возобновлении.
	PendingCallbackID *uuid.UUID `json:"pending_callback_id,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// MarkFailed переводит run в FAILED с ошибкой.
func (r *WorkflowRun) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.PendingCallbackID = nil
	r.Error = err
	r.FinishedAt = &now
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(definitionID string, input map[string]any) *WorkflowRun {
	now := time.Now()
	return &WorkflowRun{
		ID:           uuid.New(),
		DefinitionID: definitionID,
		Status:       RunStatusRunning,
		Input:        input,
		StartedAt:    &now,
		CreatedAt:    now,
	}
}
