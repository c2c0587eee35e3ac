package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Continuum/internal/registration"
	"github.com/shaiso/Continuum/internal/repo"
)

// Register стартует workflow регистрации клиента.
// POST /api/v1/registrations
//
// Ответ 201 возвращается сразу после создания run; шаги workflow
// выполняются асинхронно в engine-процессе.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	input := registration.Input{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}
	if err := input.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	// Ранняя проверка занятости email. Не даёт гарантий (гонка
	// разрешается уникальным индексом внутри workflow), но избавляет
	// клиента от заведомо провального run.
	if _, err := h.customers.GetByEmail(r.Context(), req.Email); err == nil {
		Conflict(w, "email already registered")
		return
	} else if !errors.Is(err, repo.ErrNotFound) {
		InternalError(w, h.logger, err)
		return
	}

	run, err := h.starter.StartRun(r.Context(), registration.DefinitionID, input.ToMap())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, RegisterResponse{
		RunID:  run.ID.String(),
		Status: string(run.Status),
	})
}
