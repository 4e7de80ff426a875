package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/market-system/internal/middleware"
	"github.com/mmeshcher/market-system/internal/telemetry"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/", h.GetProducts)
			r.Get("/{id}", h.GetProduct)
			r.Post("/{id}/inventory", h.AdjustInventory)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/", h.GetCustomers)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Get("/profile", h.Profile)
			})

			r.Get("/{id}", h.GetCustomer)
			r.Post("/{id}", h.EditCustomer)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItems)
			r.Post("/items/remove", h.RemoveItems)
			r.Post("/submit", h.Submit)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
			r.Post("/{id}/send", h.SendOrder)
		})
	})

	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
