package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"callback-service/config"
	"callback-service/internal/middleware"
)

// NewRouter はルーターを生成する。OTEL_ENABLED=true の場合はotelhttpで計装する。
func NewRouter(h *CallbackHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Get("/callback", h.VerifyURL)
		r.Post("/callback", h.Receive)
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
	})

	if !cfg.OtelEnabled {
		return r
	}
	return otelhttp.NewHandler(r, cfg.OtelServiceName,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
