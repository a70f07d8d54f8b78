package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the session endpoints under the given router. Checkout
// optionally passes through extra middleware (idempotency, rate limiting)
// supplied by the caller.
func (h *Handler) Routes(r chi.Router, checkoutMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/sessions", func(s chi.Router) {
		s.Post("/", h.CreateSession)
		s.Route("/{id}", func(one chi.Router) {
			one.Get("/", h.GetSession)
			one.Delete("/", h.CloseSession)

			one.Post("/items", h.AddItem)
			one.Delete("/items", h.ClearItems)
			one.Patch("/items/{productId}", h.UpdateItem)
			one.Delete("/items/{productId}", h.RemoveItem)

			one.Post("/promo", h.ApplyPromo)
			one.Delete("/promo", h.RemovePromo)

			one.Put("/payment", h.SetPayment)

			one.With(checkoutMiddleware...).Post("/checkout", h.SubmitCheckout)
		})
	})
}
