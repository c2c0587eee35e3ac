package api

import (
	"time"

	"github.com/shaiso/Continuum/internal/domain"
)

// RegisterRequest — запрос на регистрацию клиента.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// RegisterResponse — ответ на старт регистрации.
type RegisterResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// VerifyResponse — ответ на подтверждение email.
type VerifyResponse struct {
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
}

// RunResponse — представление run в API.
type RunResponse struct {
	ID                string     `json:"id"`
	DefinitionID      string     `json:"definition_id"`
	Status            string     `json:"status"`
	PendingCallbackID *string    `json:"pending_callback_id,omitempty"`
	Error             string     `json:"error,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RunFromDomain преобразует domain.WorkflowRun в RunResponse.
func RunFromDomain(run domain.WorkflowRun) RunResponse {
	resp := RunResponse{
		ID:           run.ID.String(),
		DefinitionID: run.DefinitionID,
		Status:       string(run.Status),
		Error:        run.Error,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		CreatedAt:    run.CreatedAt,
	}
	if run.PendingCallbackID != nil {
		s := run.PendingCallbackID.String()
		resp.PendingCallbackID = &s
	}
	return resp
}

// StepResponse — представление записи журнала шага.
type StepResponse struct {
	StepName    string         `json:"step_name"`
	Result      map[string]any `json:"result,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// StepFromDomain преобразует domain.StepRecord в StepResponse.
func StepFromDomain(rec domain.StepRecord) StepResponse {
	return StepResponse{
		StepName:    rec.StepName,
		Result:      rec.Result,
		CompletedAt: rec.CompletedAt,
	}
}

// CustomerResponse — представление клиента (без хэша пароля).
type CustomerResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerFromDomain преобразует domain.Customer в CustomerResponse.
func CustomerFromDomain(c *domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
