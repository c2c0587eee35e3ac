package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Continuum/internal/domain"
)

// RunRepo — репозиторий workflow runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.WorkflowRun) error {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	query := `
		INSERT INTO runs (id, definition_id, status, input, pending_callback_id,
		                  started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.DefinitionID,
		run.Status,
		inputJSON,
		run.PendingCallbackID,
		run.StartedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	query := `
		SELECT id, definition_id, status, input, pending_callback_id,
		       error, started_at, finished_at, created_at
		FROM runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет изменяемые поля run.
func (r *RunRepo) Update(ctx context.Context, run *domain.WorkflowRun) error {
	query := `
		UPDATE runs
		SET status = $2, pending_callback_id = $3, error = $4, finished_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.PendingCallbackID,
		nullString(run.Error),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition атомарно переводит run из статуса from в to.
// Возвращает ErrInvalidState, если run уже не в статусе from —
// терминальные статусы этим защищены от повторных переходов.
func (r *RunRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.RunStatus) error {
	query := `
		UPDATE runs
		SET status = $3,
		    pending_callback_id = NULL,
		    finished_at = CASE WHEN $3 IN ('COMPLETED', 'FAILED', 'TIMED_OUT') THEN now() ELSE finished_at END
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("transition run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Suspend атомарно переводит run RUNNING → SUSPENDED и привязывает
// к нему callback. Возвращает ErrInvalidState, если run не RUNNING.
func (r *RunRepo) Suspend(ctx context.Context, id, callbackID uuid.UUID) error {
	query := `
		UPDATE runs
		SET status = 'SUSPENDED', pending_callback_id = $2
		WHERE id = $1 AND status = 'RUNNING'
	`
	result, err := r.pool.Exec(ctx, query, id, callbackID)
	if err != nil {
		return fmt.Errorf("suspend run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// MarkFailed атомарно переводит run из статуса from в FAILED
// с сообщением об ошибке.
func (r *RunRepo) MarkFailed(ctx context.Context, id uuid.UUID, from domain.RunStatus, msg string) error {
	query := `
		UPDATE runs
		SET status = 'FAILED',
		    pending_callback_id = NULL,
		    error = $3,
		    finished_at = now()
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query, id, from, msg)
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// List возвращает runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.WorkflowRun, error) {
	query := `
		SELECT id, definition_id, status, input, pending_callback_id,
		       error, started_at, finished_at, created_at
		FROM runs
		WHERE ($1::text IS NULL OR status = $1::run_status)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRunning возвращает runs в статусе RUNNING — кандидаты на
// повторный прогон после рестарта engine. SUSPENDED runs сюда
// не попадают: они ждут внешнего разрешения, а не re-execution.
func (r *RunRepo) ListRunning(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	query := `
		SELECT id, definition_id, status, input, pending_callback_id,
		       error, started_at, finished_at, created_at
		FROM runs
		WHERE status = 'RUNNING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListSuspended возвращает runs в статусе SUSPENDED — кандидаты на
// сверку с их callback'ами. Run с разрешённым callback'ом, но без
// доставленного события разрешения, добирается через эту выборку.
func (r *RunRepo) ListSuspended(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	query := `
		SELECT id, definition_id, status, input, pending_callback_id,
		       error, started_at, finished_at, created_at
		FROM runs
		WHERE status = 'SUSPENDED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list suspended runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Status domain.RunStatus
	Limit  int
	Offset int
}

// scanRun сканирует одну строку в WorkflowRun.
func scanRun(row pgx.Row) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var inputJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.DefinitionID,
		&run.Status,
		&inputJSON,
		&run.PendingCallbackID,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &run.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// collectRuns сканирует все строки результата.
func collectRuns(rows pgx.Rows) ([]domain.WorkflowRun, error) {
	var runs []domain.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
