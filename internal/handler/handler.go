// Package handler exposes the checkout domain over HTTP. Handlers decode
// requests, delegate to domain services, and map domain errors to status
// codes; no business rules live here.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caremart/checkout/internal/domain/order"
	"github.com/caremart/checkout/internal/domain/product"
	"github.com/caremart/checkout/internal/domain/referral"
	"github.com/caremart/checkout/internal/domain/user"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	orders    *order.Service
	products  product.Repository
	users     user.Repository
	referrals referral.Repository
	security  *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	products product.Repository,
	users user.Repository,
	referrals referral.Repository,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		orders:    orders,
		products:  products,
		users:     users,
		referrals: referrals,
		security:  security,
	}
}

// Routes builds the API router. Mutating order endpoints sit behind API key
// authentication; catalog and read endpoints do not.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/orders/{orderNumber}", h.GetOrder)
	r.Get("/users/{userID}/orders", h.ListUserOrders)
	r.Get("/users/{userID}/referrals", h.ListUserReferrals)
	r.Post("/coupons/preview", h.PreviewCoupon)

	r.Group(func(r chi.Router) {
		r.Use(h.security.Middleware)
		r.Post("/orders", h.CreateOrder)
		r.Post("/orders/{orderNumber}/status", h.TransitionStatus)
		r.Post("/orders/{orderNumber}/refund", h.RefundOrder)
		r.Post("/payments/confirm", h.ConfirmPayment)
	})

	return r
}

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
