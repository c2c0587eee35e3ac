package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Регистрация и подтверждение email
	mux.Handle("POST /api/v1/registrations", chain(http.HandlerFunc(h.Register)))
	mux.Handle("GET /verify", chain(http.HandlerFunc(h.Verify)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/runs/{id}/steps", chain(http.HandlerFunc(h.ListRunSteps)))

	// Customers
	mux.Handle("GET /api/v1/customers/{id}", chain(http.HandlerFunc(h.GetCustomer)))
}
