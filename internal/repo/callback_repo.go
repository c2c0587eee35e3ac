package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Continuum/internal/domain"
)

// CallbackRepo — репозиторий callback registrations.
//
// Все мутации — single-key compare-and-set по callback id:
// resolved выставляется ровно один раз, кто бы ни успел первым —
// внешний сигнал или sweep по дедлайну.
type CallbackRepo struct {
	pool *pgxpool.Pool
}

// NewCallbackRepo создаёт новый CallbackRepo.
func NewCallbackRepo(pool *pgxpool.Pool) *CallbackRepo {
	return &CallbackRepo{pool: pool}
}

// Create сохраняет новую регистрацию.
func (r *CallbackRepo) Create(ctx context.Context, cb *domain.CallbackRegistration) error {
	query := `
		INSERT INTO callbacks (id, run_id, step_name, deadline, resolved, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		cb.ID,
		cb.RunID,
		cb.StepName,
		cb.Deadline,
		cb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert callback: %w", err)
	}
	return nil
}

// GetByID возвращает регистрацию по ID.
func (r *CallbackRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallbackRegistration, error) {
	query := `
		SELECT id, run_id, step_name, deadline, resolved, outcome, result,
		       resolved_at, created_at
		FROM callbacks
		WHERE id = $1
	`
	return scanCallback(r.pool.QueryRow(ctx, query, id))
}

// MarkResolved атомарно фиксирует исход разрешения.
// Возвращает ErrInvalidState, если callback уже разрешён.
func (r *CallbackRepo) MarkResolved(ctx context.Context, id uuid.UUID, outcome domain.CallbackOutcome, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE callbacks
		SET resolved = true, outcome = $2, result = $3, resolved_at = now()
		WHERE id = $1 AND resolved = false
	`
	res, err := r.pool.Exec(ctx, query, id, outcome, resultJSON)
	if err != nil {
		return fmt.Errorf("resolve callback: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ExpireOverdue разрешает с исходом TIMEOUT все просроченные
// регистрации и возвращает их. Каждая регистрация истекает ровно один
// раз: повторный sweep уже разрешённые строки не видит.
// FOR UPDATE SKIP LOCKED позволяет гонять несколько sweeper'ов.
func (r *CallbackRepo) ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]domain.CallbackRegistration, error) {
	query := `
		UPDATE callbacks
		SET resolved = true, outcome = 'TIMEOUT', resolved_at = $1
		WHERE id IN (
			SELECT id FROM callbacks
			WHERE resolved = false AND deadline <= $1
			ORDER BY deadline ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, run_id, step_name, deadline, resolved, outcome, result,
		          resolved_at, created_at
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expire overdue callbacks: %w", err)
	}
	defer rows.Close()

	var expired []domain.CallbackRegistration
	for rows.Next() {
		cb, err := scanCallback(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *cb)
	}
	return expired, rows.Err()
}

// scanCallback сканирует одну строку в CallbackRegistration.
func scanCallback(row pgx.Row) (*domain.CallbackRegistration, error) {
	var cb domain.CallbackRegistration
	var outcome *string
	var resultJSON []byte

	err := row.Scan(
		&cb.ID,
		&cb.RunID,
		&cb.StepName,
		&cb.Deadline,
		&cb.Resolved,
		&outcome,
		&resultJSON,
		&cb.ResolvedAt,
		&cb.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan callback: %w", err)
	}

	if outcome != nil {
		cb.Outcome = domain.CallbackOutcome(*outcome)
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &cb.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &cb, nil
}
