package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/registry"
	"github.com/shaiso/Continuum/internal/telemetry"
	"github.com/shaiso/Continuum/internal/token"
)

// Verify подтверждает email по ссылке из письма.
// GET /verify?token=...
//
// Токен самодостаточен: subject — id клиента, подпись и срок действия
// проверяются без обращения к БД. Callback находится через профиль
// клиента и разрешается с исходом SUCCESS, что будит SUSPENDED run.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		BadRequest(w, "token query parameter is required")
		return
	}

	customerID, err := h.tokens.Verify(tok)
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		telemetry.TokenVerifyFailures.WithLabelValues("expired").Inc()
		Gone(w, "verification link expired")
		return
	case errors.Is(err, token.ErrMalformedToken):
		telemetry.TokenVerifyFailures.WithLabelValues("malformed").Inc()
		BadRequest(w, "invalid verification token")
		return
	case errors.Is(err, token.ErrInvalidSignature):
		telemetry.TokenVerifyFailures.WithLabelValues("signature").Inc()
		BadRequest(w, "invalid verification token")
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	customer, err := h.customers.GetByID(r.Context(), customerID)
	if HandleRepoError(w, h.logger, err, "customer not found") {
		return
	}

	// Повторный переход по ссылке после подтверждения — не ошибка.
	if customer.Status == domain.CustomerStatusEmailVerified {
		Success(w, VerifyResponse{
			CustomerID: customer.ID,
			Status:     string(customer.Status),
		})
		return
	}

	if customer.CallbackID == nil {
		NotFound(w, "no pending verification for this customer")
		return
	}

	err = h.resolver.Resolve(r.Context(), *customer.CallbackID, map[string]any{
		"verified": true,
	})
	switch {
	case errors.Is(err, registry.ErrAlreadyResolved):
		// Событие уже в пути; для клиента результат тот же.
	case errors.Is(err, registry.ErrCallbackExpired):
		Gone(w, "verification window has closed")
		return
	case errors.Is(err, registry.ErrUnknownCallback):
		NotFound(w, "no pending verification for this customer")
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	Success(w, VerifyResponse{
		CustomerID: customer.ID,
		Status:     string(domain.CustomerStatusEmailVerified),
	})
}
