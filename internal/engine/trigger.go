package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/telemetry"
)

// RunEventPublisher публикует событие о создании run.
type RunEventPublisher interface {
	PublishRunCreated(ctx context.Context, runID uuid.UUID) error
}

// Trigger стартует workflow runs.
//
// Живёт на стороне API-процесса: создаёт запись run и публикует
// событие для engine. Fire-and-forget — клиент получает id run,
// не дожидаясь выполнения шагов.
type Trigger struct {
	runs      RunStore
	publisher RunEventPublisher
	logger    *slog.Logger
}

// NewTrigger создаёт Trigger.
func NewTrigger(runs RunStore, publisher RunEventPublisher, logger *slog.Logger) *Trigger {
	return &Trigger{runs: runs, publisher: publisher, logger: logger}
}

// StartRun создаёт run в статусе RUNNING и отдаёт его engine.
func (t *Trigger) StartRun(ctx context.Context, definitionID string, input map[string]any) (*domain.WorkflowRun, error) {
	run := domain.NewRun(definitionID, input)

	if err := t.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	telemetry.RunsStarted.Inc()

	if err := t.publisher.PublishRunCreated(ctx, run.ID); err != nil {
		// Запись уже есть: recovery poll engine'а подхватит run
		// даже без события, поэтому старт не откатываем.
		t.logger.Error("publish run.created", "run_id", run.ID, "error", err)
	}

	t.logger.Info("run started", "run_id", run.ID, "definition", definitionID)

	return run, nil
}
