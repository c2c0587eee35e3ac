package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/token"
)

// RunStarter стартует workflow run (см. engine.Trigger).
type RunStarter interface {
	StartRun(ctx context.Context, definitionID string, input map[string]any) (*domain.WorkflowRun, error)
}

// CallbackResolver разрешает callback (см. registry.Registry).
type CallbackResolver interface {
	Resolve(ctx context.Context, id uuid.UUID, result map[string]any) error
}

// RunReader читает runs.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.WorkflowRun, error)
}

// StepReader читает журнал шагов run.
type StepReader interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error)
}

// CustomerReader читает клиентов.
type CustomerReader interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	starter   RunStarter
	resolver  CallbackResolver
	runs      RunReader
	steps     StepReader
	customers CustomerReader
	tokens    *token.Codec
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Starter   RunStarter
	Resolver  CallbackResolver
	Runs      RunReader
	Steps     StepReader
	Customers CustomerReader
	Tokens    *token.Codec
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		starter:   cfg.Starter,
		resolver:  cfg.Resolver,
		runs:      cfg.Runs,
		steps:     cfg.Steps,
		customers: cfg.Customers,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
	}
}
