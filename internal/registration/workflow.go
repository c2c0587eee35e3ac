package registration

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/engine"
	"github.com/shaiso/Continuum/internal/mailer"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/token"
)

// DefinitionID — идентификатор workflow регистрации.
const DefinitionID = "customer-registration"

// Имена шагов.
const (
	StepCreateCustomer    = "create-customer-record"
	StepEmailVerification = "send-email-verification"
	StepWelcomeEmail      = "send-welcome-email"
)

// DefaultVerificationTimeout — срок действия ссылки подтверждения.
const DefaultVerificationTimeout = 48 * time.Hour

// ErrEmailTaken — клиент с таким email уже зарегистрирован.
var ErrEmailTaken = errors.New("email already registered")

// CustomerStore — хранилище клиентов, в которое пишет workflow.
type CustomerStore interface {
	Create(ctx context.Context, c *domain.Customer) error
	Update(ctx context.Context, id string, upd domain.CustomerUpdate) error
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

// Config — зависимости workflow регистрации.
type Config struct {
	Customers CustomerStore
	Mailer    mailer.Messenger
	Tokens    *token.Codec

	// BaseURL — адрес API для ссылки подтверждения.
	BaseURL string

	// VerificationTimeout — сколько ждать перехода по ссылке;
	// по умолчанию DefaultVerificationTimeout.
	VerificationTimeout time.Duration
}

// Workflow — фабрика определения workflow регистрации.
type Workflow struct {
	customers CustomerStore
	mailer    mailer.Messenger
	tokens    *token.Codec
	baseURL   string
	timeout   time.Duration
}

// New создаёт Workflow.
func New(cfg Config) *Workflow {
	if cfg.VerificationTimeout <= 0 {
		cfg.VerificationTimeout = DefaultVerificationTimeout
	}
	return &Workflow{
		customers: cfg.Customers,
		mailer:    cfg.Mailer,
		tokens:    cfg.Tokens,
		baseURL:   cfg.BaseURL,
		timeout:   cfg.VerificationTimeout,
	}
}

// Definition собирает определение для движка.
func (w *Workflow) Definition() *engine.Definition {
	return &engine.Definition{
		ID: DefinitionID,
		Steps: []engine.Step{
			{
				Name: StepCreateCustomer,
				Run:  w.createCustomer,
				// Создание не повторяем вслепую: конфликт по email
				// разбирается внутри шага.
				Retry: &engine.RetryPolicy{MaxAttempts: 1},
			},
			{
				Name: StepEmailVerification,
				Wait: &engine.WaitSpec{
					Timeout:    w.timeout,
					OnRegister: w.sendVerification,
				},
			},
			{
				Name: StepWelcomeEmail,
				Run:  w.sendWelcome,
			},
		},
	}
}

// createCustomer — первый шаг: запись клиента со статусом REGISTERED.
//
// Шаг идемпотентен относительно replay: если запись с этим email уже
// создана этим же run (сбой между выполнением и фиксацией в журнале),
// повтор возвращает существующий id вместо ошибки.
func (w *Workflow) createCustomer(ctx context.Context, ec *engine.ExecContext) (map[string]any, error) {
	input, err := parseInput(ec.Input)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	customer := &domain.Customer{
		ID:           ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: string(hash),
		Status:       domain.CustomerStatusRegistered,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := w.customers.Create(ctx, customer); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			existing, gerr := w.customers.GetByEmail(ctx, input.Email)
			if gerr != nil {
				return nil, fmt.Errorf("load existing customer: %w", gerr)
			}
			// Свежая запись в REGISTERED — наш же незафиксированный
			// повтор; всё остальное — чужой клиент.
			if existing.Status == domain.CustomerStatusRegistered {
				return map[string]any{"customer_id": existing.ID}, nil
			}
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return map[string]any{"customer_id": customer.ID}, nil
}

// sendVerification — побочный эффект регистрации wait-шага:
// выпуск токена, письмо со ссылкой, отметка в профиле клиента.
// Выполняется не более одного раза на run.
func (w *Workflow) sendVerification(ctx context.Context, ec *engine.ExecContext, callbackID uuid.UUID) error {
	input, err := parseInput(ec.Input)
	if err != nil {
		return err
	}

	customerID, err := customerIDFrom(ec)
	if err != nil {
		return err
	}

	tok, err := w.tokens.Issue(customerID, w.timeout)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}

	verificationURL := fmt.Sprintf("%s/verify?token=%s", w.baseURL, tok)

	err = w.mailer.Send(ctx, input.Email, mailer.TemplateVerification, map[string]any{
		"name":             input.FirstName,
		"email":            input.Email,
		"verification_url": verificationURL,
	})
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}

	status := domain.CustomerStatusVerificationSent
	err = w.customers.Update(ctx, customerID, domain.CustomerUpdate{
		Status:     &status,
		CallbackID: &callbackID,
	})
	if err != nil {
		return fmt.Errorf("mark verification sent: %w", err)
	}

	return nil
}

// sendWelcome — финальный шаг после подтверждения email.
func (w *Workflow) sendWelcome(ctx context.Context, ec *engine.ExecContext) (map[string]any, error) {
	input, err := parseInput(ec.Input)
	if err != nil {
		return nil, err
	}

	customerID, err := customerIDFrom(ec)
	if err != nil {
		return nil, err
	}

	status := domain.CustomerStatusEmailVerified
	err = w.customers.Update(ctx, customerID, domain.CustomerUpdate{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}

	err = w.mailer.Send(ctx, input.Email, mailer.TemplateWelcome, map[string]any{
		"name":  input.FirstName,
		"email": input.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("send welcome email: %w", err)
	}

	return map[string]any{
		"customer_id":         customerID,
		"registration_status": string(domain.CustomerStatusEmailVerified),
	}, nil
}

// customerIDFrom достаёт id клиента из результата первого шага.
func customerIDFrom(ec *engine.ExecContext) (string, error) {
	result, ok := ec.Results[StepCreateCustomer]
	if !ok {
		return "", fmt.Errorf("step %s has no committed result", StepCreateCustomer)
	}
	id, ok := result["customer_id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("step %s result has no customer_id", StepCreateCustomer)
	}
	return id, nil
}
