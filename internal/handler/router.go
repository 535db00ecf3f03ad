package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"contract-portal-service/config"
)

// NewRouter はルーターを生成する。
func NewRouter(h *ContractHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Route("/v1/tenants/{tenant_id}/contracts", func(r chi.Router) {
		r.Post("/", h.CreateContract)
		r.Get("/", h.ListContracts)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/expiring", h.GetExpiringContracts)
		r.Get("/notifications", h.GetExpiryNotices)
		r.Get("/{contract_id}", h.GetContract)
		r.Patch("/{contract_id}", h.UpdateContract)
		r.Delete("/{contract_id}", h.DeleteContract)
		r.Patch("/{contract_id}/status", h.UpdateContractStatus)
		r.Post("/{contract_id}/renew", h.RenewContract)
		r.Get("/{contract_id}/history", h.GetContractHistory)
	})

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
