package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/order"
)

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	UserID       string        `json:"user_id"`
	Items        []itemRequest `json:"items"`
	ShippingCost string        `json:"shipping_cost,omitempty"`
	CouponCode   string        `json:"coupon_code,omitempty"`
	ReferralCode string        `json:"referral_code,omitempty"`
}

type itemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	OrderNumber   string         `json:"order_number"`
	UserID        string         `json:"user_id"`
	Items         []itemResponse `json:"items"`
	Subtotal      string         `json:"subtotal"`
	ShippingCost  string         `json:"shipping_cost"`
	DiscountValue string         `json:"discount_value"`
	TotalAmount   string         `json:"total_amount"`
	CouponCode    string         `json:"coupon_code,omitempty"`
	DiscountType  string         `json:"discount_type,omitempty"`
	CouponApplied bool           `json:"coupon_applied"`
	ReferralCode  string         `json:"referral_code,omitempty"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
			LineTotal: it.LineTotal.String(),
		}
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.Number,
		UserID:        o.UserID,
		Items:         items,
		Subtotal:      o.Subtotal.String(),
		ShippingCost:  o.ShippingCost.String(),
		DiscountValue: o.DiscountValue.String(),
		TotalAmount:   o.TotalAmount.String(),
		CouponCode:    o.CouponCode,
		DiscountType:  string(o.DiscountType),
		CouponApplied: o.CouponApplied,
		ReferralCode:  o.ReferralCode,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (req createOrderRequest) toDomain() (order.CreateRequest, error) {
	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	shipping := money.Zero
	if req.ShippingCost != "" {
		d, err := decimal.NewFromString(req.ShippingCost)
		if err != nil || d.IsNegative() {
			return order.CreateRequest{}, errors.New("invalid shipping_cost")
		}
		shipping = money.FromDecimal(d)
	}

	return order.CreateRequest{
		UserID:       req.UserID,
		Items:        items,
		ShippingCost: shipping,
		CouponCode:   req.CouponCode,
		ReferralCode: req.ReferralCode,
	}, nil
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	domainReq, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Create(r.Context(), domainReq)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder handles GET /orders/{orderNumber}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListUserOrders handles GET /users/{userID}/orders.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

type transitionRequest struct {
	Status string `json:"status"`
}

// TransitionStatus handles POST /orders/{orderNumber}/status.
func (h *Handler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.TransitionStatus(r.Context(), chi.URLParam(r, "orderNumber"), order.Status(req.Status))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type confirmPaymentRequest struct {
	OrderNumber string `json:"order_number"`
	Confirmed   bool   `json:"confirmed"`
}

// ConfirmPayment handles POST /payments/confirm: the payment gateway
// callback. A confirmed payment moves the order to paid and triggers
// commission settlement; a declined one moves it to failed.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, "order_number is required")
		return
	}

	to := order.PaymentFailed
	if req.Confirmed {
		to = order.PaymentPaid
	}

	o, err := h.orders.TransitionPaymentStatus(r.Context(), req.OrderNumber, to)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RefundOrder handles POST /orders/{orderNumber}/refund. Moving payment to
// refunded drives the commission reversal.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.TransitionPaymentStatus(r.Context(), chi.URLParam(r, "orderNumber"), order.PaymentRefunded)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type previewCouponRequest struct {
	UserID       string        `json:"user_id"`
	Items        []itemRequest `json:"items"`
	ShippingCost string        `json:"shipping_cost,omitempty"`
	CouponCode   string        `json:"coupon_code"`
}

type previewCouponResponse struct {
	Subtotal      string `json:"subtotal"`
	DiscountValue string `json:"discount_value"`
	DiscountType  string `json:"discount_type,omitempty"`
	CouponApplied bool   `json:"coupon_applied"`
	TotalAmount   string `json:"total_amount"`
}

// PreviewCoupon handles POST /coupons/preview: price a cart with a coupon
// without persisting anything or consuming a use.
func (h *Handler) PreviewCoupon(w http.ResponseWriter, r *http.Request) {
	var req previewCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	domainReq, err := createOrderRequest{
		UserID:       req.UserID,
		Items:        req.Items,
		ShippingCost: req.ShippingCost,
		CouponCode:   req.CouponCode,
	}.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.orders.Quote(r.Context(), domainReq)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewCouponResponse{
		Subtotal:      p.Subtotal.String(),
		DiscountValue: p.DiscountValue.String(),
		DiscountType:  string(p.DiscountType),
		CouponApplied: p.CouponApplied,
		TotalAmount:   p.TotalAmount.String(),
	})
}

// writeOrderError converts domain errors to HTTP responses. Unrecognized
// errors are logged and surfaced as 500 without leaking internals.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, coupon.ErrCouponExhausted),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrUserLimitReached):
		writeError(w, http.StatusConflict, unwrapMessage(err))
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponInactive),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrMinOrderNotMet),
		errors.Is(err, coupon.ErrUserNotEligible):
		writeError(w, http.StatusUnprocessableEntity, unwrapMessage(err))
	default:
		var iqErr *order.InvalidQuantityError
		var pnfErr *order.ProductNotFoundError
		var itErr *order.InvalidTransitionError
		switch {
		case errors.As(err, &iqErr):
			writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
		case errors.As(err, &pnfErr):
			writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
		case errors.As(err, &itErr):
			writeError(w, http.StatusConflict, itErr.Error())
		default:
			zctx.From(r.Context()).Error("request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

// unwrapMessage strips wrap context so clients see the sentinel message, not
// the internal call chain.
func unwrapMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
