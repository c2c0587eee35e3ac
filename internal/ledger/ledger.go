package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/repo"
)

// StepStore — персистентное хранилище записей шагов.
type StepStore interface {
	// Insert фиксирует запись; ErrAlreadyExists, если шаг уже записан.
	Insert(ctx context.Context, rec *domain.StepRecord) error
	// Get возвращает запись или ErrNotFound.
	Get(ctx context.Context, runID uuid.UUID, stepName string) (*domain.StepRecord, error)
	// ListByRun возвращает записи run в порядке фиксации.
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error)
}

// Ledger — журнал шагов поверх StepStore.
//
// Внутри процесса конкурентные вызовы RecordOrGet по одному ключу
// схлопываются через singleflight; между процессами дубликаты
// отсекаются первичным ключом хранилища.
type Ledger struct {
	store StepStore
	group singleflight.Group
	now   func() time.Time
}

// Config — параметры Ledger.
type Config struct {
	Store StepStore
	// Now — источник времени, по умолчанию time.Now.
	Now func() time.Time
}

// New создаёт Ledger.
func New(cfg Config) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		store: cfg.Store,
		now:   cfg.Now,
	}
}

// RecordOrGet возвращает зафиксированный результат шага, либо
// выполняет produce и фиксирует его результат. При успешной фиксации
// produce вызывается не более одного раза на (run, step) за всю
// жизнь run.
//
// Порядок строгий: сначала выполнение, потом запись. Сбой между ними
// оставляет журнал без записи, и следующий драйв выполнит шаг заново —
// поэтому семантика шага at-most-once относительно журнала, но
// produce обязан переживать повтор.
//
// Ошибка produce в журнал не попадает: неуспех не мемоизируется.
func (l *Ledger) RecordOrGet(ctx context.Context, runID uuid.UUID, stepName string, produce func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	key := runID.String() + "/" + stepName

	v, err, _ := l.group.Do(key, func() (any, error) {
		rec, err := l.store.Get(ctx, runID, stepName)
		if err == nil {
			return rec.Result, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("read step record: %w", err)
		}

		result, err := produce(ctx)
		if err != nil {
			return nil, err
		}

		rec = &domain.StepRecord{
			RunID:       runID,
			StepName:    stepName,
			Result:      result,
			CompletedAt: l.now(),
		}
		if err := l.store.Insert(ctx, rec); err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				// Другой процесс успел первым — его запись и есть истина.
				winner, gerr := l.store.Get(ctx, runID, stepName)
				if gerr != nil {
					return nil, fmt.Errorf("read winning step record: %w", gerr)
				}
				return winner.Result, nil
			}
			return nil, fmt.Errorf("commit step record: %w", err)
		}

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(map[string]any), nil
}

// Lookup возвращает запись шага без выполнения.
// ErrNotFound, если шаг ещё не фиксировался.
func (l *Ledger) Lookup(ctx context.Context, runID uuid.UUID, stepName string) (*domain.StepRecord, error) {
	return l.store.Get(ctx, runID, stepName)
}

// History возвращает все записи run в порядке фиксации.
func (l *Ledger) History(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error) {
	return l.store.ListByRun(ctx, runID)
}
