package order

import (
	"context"
	"fmt"
	"time"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = fmt.Errorf("items required")
	ErrNotFound   = fmt.Errorf("order not found")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist in the
// catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidTransitionError indicates an attempted lifecycle transition that is
// not in the transition table. These are workflow errors: they are surfaced
// verbatim, never coerced to a nearby valid state.
type InvalidTransitionError struct {
	Field string // "status" or "payment_status"
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Field, e.From, e.To)
}

// Item is a priced order line. UnitPrice and LineTotal are always recomputed
// server-side from the catalog; client-supplied prices are never trusted.
type Item struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
	LineTotal money.Money `json:"line_total"`
}

// Order is the purchase aggregate. Totals are computed once at creation and
// never re-priced; only the ledger mutates its lifecycle fields afterwards.
type Order struct {
	ID     string
	Number string
	UserID string
	Items  []Item

	Subtotal      money.Money
	ShippingCost  money.Money
	DiscountValue money.Money
	TotalAmount   money.Money

	CouponCode    string
	DiscountType  coupon.Type
	CouponApplied bool
	ReferralCode  string

	Status        Status
	PaymentStatus PaymentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Redemption records the coupon consumption that must commit atomically with
// the order.
type Redemption struct {
	Code   string
	UserID string
}

// Repository defines persistence operations for orders. Create is the
// correctness-critical atomic unit: the order insert, the coupon-usage
// conditional increment, and the per-user redemption record commit together
// or not at all. A failed conditional increment surfaces
// coupon.ErrCouponExhausted (or coupon.ErrUserLimitReached) and leaves no
// order behind.
type Repository interface {
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, o *Order, redeem *Redemption) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, number string, s Status) error
	UpdatePaymentStatus(ctx context.Context, number string, ps PaymentStatus) error
}

// PaymentEvents receives lifecycle notifications that drive commission
// settlement. Implementations must be idempotent: a transition may be
// redelivered after a partial failure.
type PaymentEvents interface {
	OrderPaid(ctx context.Context, o *Order) error
	OrderReversed(ctx context.Context, o *Order) error
}

// NopEvents is a PaymentEvents that does nothing.
type NopEvents struct{}

func (NopEvents) OrderPaid(context.Context, *Order) error     { return nil }
func (NopEvents) OrderReversed(context.Context, *Order) error { return nil }
