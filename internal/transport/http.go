package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/attar-shop/internal/auth"
	"github.com/vasiliy-maslov/attar-shop/internal/handler"
)

type Handlers struct {
	Catalog *handler.CatalogHandler
	Order   *handler.OrderHandler
	Review  *handler.ReviewHandler
	Payment *handler.PaymentHandler
}

func NewRouter(sessions auth.Sessions, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Public catalog surface.
	r.Get("/products", h.Catalog.HandleListProducts)
	r.Get("/products/{id}", h.Catalog.HandleGetProduct)
	r.Get("/products/{id}/reviews", h.Review.HandleListReviews)

	// The gateway authenticates with a shared secret, not a session.
	r.Post("/webhooks/payment", h.Payment.HandleWebhook)

	// Authenticated customer surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticator(sessions))

		r.Post("/cart/validate", h.Order.HandleValidateCart)
		r.Post("/orders", h.Order.HandlePlaceOrder)
		r.Get("/orders", h.Order.HandleListMyOrders)
		r.Get("/orders/{id}", h.Order.HandleGetOrder)
		r.Post("/orders/{id}/cancel", h.Order.HandleCancelOrder)
		r.Post("/orders/{id}/payment-intent", h.Payment.HandleCreateIntent)

		r.Post("/products/{id}/reviews", h.Review.HandleCreateReview)
		r.Put("/reviews/{id}", h.Review.HandleUpdateReview)
		r.Delete("/reviews/{id}", h.Review.HandleDeleteReview)
		r.Post("/reviews/{id}/helpful", h.Review.HandleToggleHelpfulVote)
	})

	// Admin surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticator(sessions))
		r.Use(auth.RequireAdmin)

		r.Post("/admin/products", h.Catalog.HandleCreateProduct)
		r.Put("/admin/products/{id}", h.Catalog.HandleUpdateProduct)
		r.Delete("/admin/products/{id}", h.Catalog.HandleDeleteProduct)

		r.Get("/admin/orders", h.Order.HandleAdminListOrders)
		r.Patch("/admin/orders/{id}/status", h.Order.HandleAdminSetStatus)
	})

	return r
}
