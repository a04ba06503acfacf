package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Catalog       *CatalogHandler
	Cart          *CartHandler
	Checkout      *CheckoutHandler
	Sales         *SalesHandler
	Notifications *NotificationsHandler
	Verifier      TokenVerifier
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog/products", cfg.Catalog.ListProducts)
		r.Get("/catalog/products/{product_id}", cfg.Catalog.GetProduct)
		r.Get("/sales/payment-methods", cfg.Sales.PaymentMethods)

		// Everything below requires a resolved caller.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Verifier))

			r.Get("/cart", cfg.Cart.GetCart)
			r.Post("/cart/items", cfg.Cart.AddItem)
			r.Put("/cart/items/{product_id}", cfg.Cart.UpdateQuantity)
			r.Delete("/cart/items/{product_id}", cfg.Cart.RemoveItem)
			r.Delete("/cart", cfg.Cart.ClearCart)

			r.Post("/checkout", cfg.Checkout.InitiateCheckout)
			r.Get("/checkout/verify", cfg.Checkout.VerifyCheckout)

			r.Get("/sales", cfg.Sales.ListSales)
			r.Get("/sales/latest", cfg.Sales.LatestSales)
			r.Get("/sales/stats", cfg.Sales.Stats)
			r.Get("/sales/{sale_id}", cfg.Sales.GetSale)

			r.Get("/notifications", cfg.Notifications.ListNotifications)
			r.Post("/notifications/{notification_id}/read", cfg.Notifications.MarkRead)
		})
	})

	return r
}
