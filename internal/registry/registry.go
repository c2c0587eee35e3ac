package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/mq"
	"github.com/shaiso/Continuum/internal/repo"
)

// CallbackStore — персистентное хранилище регистраций.
type CallbackStore interface {
	Create(ctx context.Context, cb *domain.CallbackRegistration) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CallbackRegistration, error)
	// MarkResolved — CAS: ErrInvalidState, если уже разрешён.
	MarkResolved(ctx context.Context, id uuid.UUID, outcome domain.CallbackOutcome, result map[string]any) error
	ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]domain.CallbackRegistration, error)
}

// ResolutionPublisher публикует события разрешения для engine.
type ResolutionPublisher interface {
	PublishCallbackResolved(ctx context.Context, payload mq.CallbackResolvedPayload) error
}

// Registry — реестр callback'ов.
//
// Id регистрации — случайный UUID; его знание и есть право разрешить
// callback, других проверок нет.
type Registry struct {
	store     CallbackStore
	publisher ResolutionPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// Config — параметры Registry.
type Config struct {
	Store     CallbackStore
	Publisher ResolutionPublisher
	Logger    *slog.Logger
	// Now — источник времени, по умолчанию time.Now.
	Now func() time.Time
}

// New создаёт Registry.
func New(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Register создаёт регистрацию для шага run и возвращает её id.
// Дедлайн = now + timeout.
func (r *Registry) Register(ctx context.Context, runID uuid.UUID, stepName string, timeout time.Duration) (uuid.UUID, error) {
	cb := &domain.CallbackRegistration{
		ID:        uuid.New(),
		RunID:     runID,
		StepName:  stepName,
		Deadline:  r.now().Add(timeout),
		CreatedAt: r.now(),
	}

	if err := r.store.Create(ctx, cb); err != nil {
		return uuid.Nil, fmt.Errorf("register callback: %w", err)
	}

	r.logger.Info("callback registered",
		"callback_id", cb.ID,
		"run_id", runID,
		"step", stepName,
		"deadline", cb.Deadline,
	)

	return cb.ID, nil
}

// Get возвращает регистрацию по id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.CallbackRegistration, error) {
	cb, err := r.store.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnknownCallback
	}
	return cb, err
}

// Resolve разрешает callback с исходом SUCCESS.
//
// Просроченный callback ленивой проверкой форсируется в TIMEOUT —
// даже если sweep до него ещё не дошёл — и вызов получает
// ErrCallbackExpired. Повторное разрешение возвращает
// ErrAlreadyResolved.
func (r *Registry) Resolve(ctx context.Context, id uuid.UUID, result map[string]any) error {
	cb, err := r.store.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUnknownCallback
	}
	if err != nil {
		return fmt.Errorf("load callback: %w", err)
	}
	if cb.Resolved {
		return ErrAlreadyResolved
	}

	if cb.IsExpired(r.now()) {
		if err := r.forceTimeout(ctx, cb); err != nil {
			return err
		}
		return ErrCallbackExpired
	}

	if err := r.store.MarkResolved(ctx, id, domain.OutcomeSuccess, result); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrAlreadyResolved
		}
		return fmt.Errorf("resolve callback: %w", err)
	}

	r.logger.Info("callback resolved",
		"callback_id", id,
		"run_id", cb.RunID,
		"step", cb.StepName,
	)

	return r.publishResolved(ctx, cb, domain.OutcomeSuccess, result)
}

// ExpireOverdue форсирует TIMEOUT для просроченных регистраций
// и публикует события разрешения. Возвращает число обработанных.
func (r *Registry) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	expired, err := r.store.ExpireOverdue(ctx, r.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("expire overdue callbacks: %w", err)
	}

	for i := range expired {
		cb := &expired[i]
		r.logger.Info("callback timed out",
			"callback_id", cb.ID,
			"run_id", cb.RunID,
			"step", cb.StepName,
		)
		if err := r.publishResolved(ctx, cb, domain.OutcomeTimeout, nil); err != nil {
			// Хранилище уже зафиксировало TIMEOUT; reconciliation poll
			// engine'а применит исход по pending_callback_id, так что
			// событие можно потерять.
			r.logger.Error("publish timeout resolution", "callback_id", cb.ID, "error", err)
		}
	}

	return len(expired), nil
}

// forceTimeout фиксирует TIMEOUT при ленивой проверке дедлайна.
func (r *Registry) forceTimeout(ctx context.Context, cb *domain.CallbackRegistration) error {
	err := r.store.MarkResolved(ctx, cb.ID, domain.OutcomeTimeout, nil)
	if errors.Is(err, repo.ErrInvalidState) {
		// Sweep успел первым, исход уже зафиксирован.
		return nil
	}
	if err != nil {
		return fmt.Errorf("force timeout: %w", err)
	}

	r.logger.Info("callback timed out on access",
		"callback_id", cb.ID,
		"run_id", cb.RunID,
	)

	return r.publishResolved(ctx, cb, domain.OutcomeTimeout, nil)
}

func (r *Registry) publishResolved(ctx context.Context, cb *domain.CallbackRegistration, outcome domain.CallbackOutcome, result map[string]any) error {
	return r.publisher.PublishCallbackResolved(ctx, mq.CallbackResolvedPayload{
		CallbackID: cb.ID,
		RunID:      cb.RunID,
		StepName:   cb.StepName,
		Outcome:    outcome,
		Result:     result,
	})
}
