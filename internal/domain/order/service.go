package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/product"
)

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	UserID       string
	Items        []ItemRequest
	ShippingCost money.Money
	CouponCode   string
	ReferralCode string
}

// Service is the order ledger: it owns order creation and lifecycle
// transitions, and guarantees the coupon-usage invariant by delegating the
// counter increment to the repository's atomic commit.
type Service struct {
	products product.Repository
	coupons  coupon.Repository
	orders   Repository
	events   PaymentEvents
	now      func() time.Time
}

// NewService creates an order Service. A nil events sink disables
// settlement notifications.
func NewService(
	products product.Repository,
	coupons coupon.Repository,
	orders Repository,
	events PaymentEvents,
) *Service {
	if events == nil {
		events = NopEvents{}
	}
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		events:   events,
		now:      time.Now,
	}
}

// Quote prices a candidate order without persisting anything: line totals and
// subtotal are recomputed from the catalog and the coupon (if any) is
// validated and applied. Checkout UIs use this for previews; Create uses it
// as its first phase.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (*Pricing, error) {
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	unitPrices := map[string]money.Money{}
	if len(ids) > 0 {
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get products")
		}
		for _, p := range fetched {
			unitPrices[p.ID] = money.FromDecimal(p.Price)
		}
	}

	items, subtotal, err := PriceItems(req.Items, unitPrices)
	if err != nil {
		return nil, err
	}

	discount := money.Zero
	var discountType coupon.Type
	if req.CouponCode != "" {
		code := coupon.NormalizeCode(req.CouponCode)
		c, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "lookup coupon")
		}
		priorUses, err := s.coupons.CountRedemptions(ctx, code, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon redemptions")
		}
		discount, err = coupon.Validate(c, subtotal, req.UserID, priorUses, s.now())
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discountType = c.Type
	}

	p := ComputePricing(items, subtotal, req.ShippingCost, discount, discountType)
	return &p, nil
}

// Create prices the order, validates the coupon, and commits the order
// together with the coupon-usage increment as one atomic unit. When the
// conditional increment loses the race for the last remaining use, the whole
// creation fails with coupon.ErrCouponExhausted and no order is persisted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	pricing, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	seq, err := s.orders.NextNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next order number")
	}

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		Number:        FormatNumber(seq),
		UserID:        req.UserID,
		Items:         pricing.Items,
		Subtotal:      pricing.Subtotal,
		ShippingCost:  req.ShippingCost,
		DiscountValue: pricing.DiscountValue,
		TotalAmount:   pricing.TotalAmount,
		DiscountType:  pricing.DiscountType,
		CouponApplied: pricing.CouponApplied,
		ReferralCode:  req.ReferralCode,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var redeem *Redemption
	if pricing.CouponApplied {
		o.CouponCode = coupon.NormalizeCode(req.CouponCode)
		redeem = &Redemption{Code: o.CouponCode, UserID: req.UserID}
	}

	if err := s.orders.Create(ctx, o, redeem); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns an order by its external number.
func (s *Service) Get(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByNumber(ctx, number)
}

// ListByUser returns all orders placed by the given user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// TransitionStatus moves an order through the fulfilment state machine.
// Cancelling an already-paid order emits a reversal event.
func (s *Service) TransitionStatus(ctx context.Context, number string, to Status) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if !to.Valid() || !o.Status.CanTransition(to) {
		return nil, &InvalidTransitionError{Field: "status", From: string(o.Status), To: string(to)}
	}

	if err := s.orders.UpdateStatus(ctx, number, to); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	from := o.Status
	o.Status = to
	o.UpdatedAt = s.now()

	if to == StatusCancelled && from != StatusCancelled && o.PaymentStatus == PaymentPaid {
		if err := s.events.OrderReversed(ctx, o); err != nil {
			return nil, errors.Wrap(err, "reverse settlement")
		}
	}
	return o, nil
}

// TransitionPaymentStatus moves an order through the payment state machine.
// Entering paid emits a settlement event; entering refunded emits a reversal.
// The status write is durable before the event fires: settlement is
// idempotent, so a redelivered event after a partial failure is safe.
func (s *Service) TransitionPaymentStatus(ctx context.Context, number string, to PaymentStatus) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	// Payment providers deliver confirmations at least once. A confirm
	// against an already-paid order is a redelivery: the status is durable,
	// so only the settlement event needs re-firing. That also recovers a
	// settlement that failed after the first status write landed.
	if to == PaymentPaid && o.PaymentStatus == PaymentPaid {
		if err := s.events.OrderPaid(ctx, o); err != nil {
			return nil, errors.Wrap(err, "settle commission")
		}
		return o, nil
	}

	if !to.Valid() || !o.PaymentStatus.CanTransition(to) {
		return nil, &InvalidTransitionError{Field: "payment_status", From: string(o.PaymentStatus), To: string(to)}
	}

	if err := s.orders.UpdatePaymentStatus(ctx, number, to); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	o.PaymentStatus = to
	o.UpdatedAt = s.now()

	switch to {
	case PaymentPaid:
		if err := s.events.OrderPaid(ctx, o); err != nil {
			return nil, errors.Wrap(err, "settle commission")
		}
	case PaymentRefunded:
		if err := s.events.OrderReversed(ctx, o); err != nil {
			return nil, errors.Wrap(err, "reverse settlement")
		}
	}
	return o, nil
}
