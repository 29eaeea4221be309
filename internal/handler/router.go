package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	custommiddleware "github.com/mmeshcher/greenfill-hub/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса Greenfill Hub.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         600,
	}).Handler)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route(h.prefix, func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.AnonKey(h.anonKey))

			r.Post("/signup", h.SignUp)
			r.Post("/token", h.Token)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/logout", h.Logout)
			r.Get("/profile", h.Profile)
			r.Post("/add-refill", h.AddRefill)
			r.Get("/refill-history", h.RefillHistory)
			r.Post("/redeem-voucher", h.RedeemVoucher)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
