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

// StepRepo — репозиторий step records (персистентная часть step ledger).
//
// Таблица append-only: записи никогда не обновляются и не удаляются.
// Уникальность (run_id, step_name) обеспечивает первичный ключ —
// на нём держится at-most-once между процессами.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

// Insert записывает результат шага.
// Возвращает ErrAlreadyExists, если запись для (run_id, step_name)
// уже есть — проигравший гонку читает результат победителя через Get.
func (r *StepRepo) Insert(ctx context.Context, rec *domain.StepRecord) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO step_records (run_id, step_name, result, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, step_name) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.RunID,
		rec.StepName,
		resultJSON,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get возвращает запись шага, если она есть.
func (r *StepRepo) Get(ctx context.Context, runID uuid.UUID, stepName string) (*domain.StepRecord, error) {
	query := `
		SELECT run_id, step_name, result, completed_at
		FROM step_records
		WHERE run_id = $1 AND step_name = $2
	`
	return scanStepRecord(r.pool.QueryRow(ctx, query, runID, stepName))
}

// ListByRun возвращает все записи шагов run в порядке их фиксации.
func (r *StepRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error) {
	query := `
		SELECT run_id, step_name, result, completed_at
		FROM step_records
		WHERE run_id = $1
		ORDER BY completed_at ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list step records: %w", err)
	}
	defer rows.Close()

	var records []domain.StepRecord
	for rows.Next() {
		rec, err := scanStepRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanStepRecord сканирует одну строку в StepRecord.
func scanStepRecord(row pgx.Row) (*domain.StepRecord, error) {
	var rec domain.StepRecord
	var resultJSON []byte

	err := row.Scan(
		&rec.RunID,
		&rec.StepName,
		&resultJSON,
		&rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step record: %w", err)
	}

	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &rec, nil
}
