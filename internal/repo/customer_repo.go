package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Continuum/internal/domain"
)

// uniqueViolation — код ошибки PostgreSQL для конфликта уникальности.
const uniqueViolation = "23505"

// CustomerRepo — хранилище клиентов.
//
// Для workflow это внешний коллаборатор: engine пишет сюда только
// через шаги, сам схемой не владеет. Чтение по только что записанному
// id строго консистентно (один PostgreSQL).
type CustomerRepo struct {
	pool *pgxpool.Pool
}

// NewCustomerRepo создаёт новый CustomerRepo.
func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

// Create создаёт запись клиента.
// Возвращает ErrAlreadyExists при конфликте по email.
func (r *CustomerRepo) Create(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (id, email, first_name, last_name, password_hash,
		                       status, callback_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Email,
		c.FirstName,
		c.LastName,
		c.PasswordHash,
		c.Status,
		c.CallbackID,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// Update применяет частичное обновление: меняются только
// не-nil поля CustomerUpdate.
func (r *CustomerRepo) Update(ctx context.Context, id string, upd domain.CustomerUpdate) error {
	query := `
		UPDATE customers
		SET status      = COALESCE($2, status),
		    callback_id = COALESCE($3, callback_id),
		    updated_at  = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, upd.Status, upd.CallbackID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает клиента по ID.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	query := customerSelect + ` WHERE id = $1`
	return scanCustomer(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail возвращает клиента по email.
func (r *CustomerRepo) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	query := customerSelect + ` WHERE email = $1`
	return scanCustomer(r.pool.QueryRow(ctx, query, email))
}

const customerSelect = `
	SELECT id, email, first_name, last_name, password_hash, status,
	       callback_id, created_at, updated_at
	FROM customers
`

// scanCustomer сканирует одну строку в Customer.
func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer

	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.FirstName,
		&c.LastName,
		&c.PasswordHash,
		&c.Status,
		&c.CallbackID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	return &c, nil
}
