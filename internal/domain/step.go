package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepRecord — запись о завершённом шаге в step ledger.
//
// Инвариант: для пары (RunID, StepName) существует не более одной записи.
// Повторное выполнение уже записанного шага возвращает сохранённый
// результат и не выполняет побочный эффект — на этом строится
// идемпотентный replay после рестарта процесса.
type StepRecord struct {
	// RunID — run, которому принадлежит шаг.
	RunID uuid.UUID `json:"run_id"`

	// StepName — имя шага, уникальное внутри run.
	StepName string `json:"step_name"`

	// Result — результат шага. Непрозрачен для engine, сериализуем.
	Result map[string]any `json:"result,omitempty"`

	// CompletedAt — время фиксации записи.
	CompletedAt time.Time `json:"completed_at"`
}
