package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/caremart/checkout/internal/domain/money"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the subtotal.
	TypeFixed Type = "fixed"
)

// Status enumerates coupon lifecycle states.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	// ErrInvalidCoupon is returned when a coupon code does not exist.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponInactive is returned when a coupon has been disabled.
	ErrCouponInactive = errors.New("coupon inactive")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrMinOrderNotMet is returned when the order subtotal is below the
	// coupon's minimum order value.
	ErrMinOrderNotMet = errors.New("order below coupon minimum")
	// ErrUserNotEligible is returned when the coupon carries an allow-list
	// that does not include the purchasing user.
	ErrUserNotEligible = errors.New("user not eligible for coupon")
	// ErrUsageLimitReached is returned when a coupon has exhausted its total
	// allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrUserLimitReached is returned when the purchasing user has already
	// redeemed the coupon the maximum allowed number of times.
	ErrUserLimitReached = errors.New("coupon already used by this user")
	// ErrCouponExhausted is returned at commit time when the conditional
	// usage increment finds no remaining uses. Callers should retry the
	// order without the coupon rather than retry blindly.
	ErrCouponExhausted = errors.New("coupon exhausted")
)

// Coupon defines a reusable discount rule.
type Coupon struct {
	Code string
	Type Type
	// Value is the percentage rate for TypePercentage, or the major-unit
	// discount amount for TypeFixed.
	Value decimal.Decimal
	// MaxDiscount caps percentage discounts. Zero means no cap.
	MaxDiscount money.Money
	// MinOrderValue is the minimum subtotal the coupon applies to.
	MinOrderValue money.Money
	// StartDate and ExpiryDate bound the validity window, inclusive.
	// A zero time leaves that side of the window open.
	StartDate  time.Time
	ExpiryDate time.Time
	// UsageLimit caps total redemptions. Zero means unlimited.
	UsageLimit int
	// UsedCount is the monotonic redemption counter. It is incremented only
	// by a successful order commit, via the repository's conditional update.
	UsedCount int
	// UserUsageLimit caps redemptions per user. Zero is treated as the
	// default of one.
	UserUsageLimit int
	// ApplicableUsers is an optional allow-list of user IDs. Empty means
	// open to all users.
	ApplicableUsers []string
	Status          Status
}

// PerUserLimit returns the effective per-user redemption cap.
func (c *Coupon) PerUserLimit() int {
	if c.UserUsageLimit <= 0 {
		return 1
	}
	return c.UserUsageLimit
}

// NormalizeCode upper-cases and trims a coupon code for case-insensitive
// matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides read access to coupon rules. The usage counter is not
// mutated here: the increment happens inside the order commit transaction so
// speculative validation calls never consume uses.
type Repository interface {
	// FindByCode looks up a coupon by its normalized code.
	// Returns ErrInvalidCoupon when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountRedemptions returns how many committed redemptions of the coupon
	// the given user already has.
	CountRedemptions(ctx context.Context, code, userID string) (int, error)
}
