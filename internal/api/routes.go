package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("POST /api/v1/connections/test", chain(http.HandlerFunc(h.TestConnection)))
	mux.Handle("GET /api/v1/strategies", chain(http.HandlerFunc(h.ListStrategies)))
}
