package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/caremart/checkout/internal/domain/money"
)

// Validate decides whether a coupon applies to a candidate order and computes
// the discount amount. It is a pure decision function: no counters move here.
// Checks run in a fixed order and the first failure short-circuits with a
// typed error.
//
// priorUses is the purchasing user's count of committed redemptions of this
// coupon, supplied by the caller from Repository.CountRedemptions.
func Validate(c *Coupon, subtotal money.Money, userID string, priorUses int, now time.Time) (money.Money, error) {
	if c.Status != StatusActive {
		return money.Zero, ErrCouponInactive
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return money.Zero, ErrCouponExpired
	}
	if !c.ExpiryDate.IsZero() && now.After(c.ExpiryDate) {
		return money.Zero, ErrCouponExpired
	}
	if subtotal < c.MinOrderValue {
		return money.Zero, ErrMinOrderNotMet
	}
	if len(c.ApplicableUsers) > 0 && !containsUser(c.ApplicableUsers, userID) {
		return money.Zero, ErrUserNotEligible
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return money.Zero, ErrUsageLimitReached
	}
	if priorUses >= c.PerUserLimit() {
		return money.Zero, ErrUserLimitReached
	}

	return discount(c, subtotal)
}

// discount computes the discount amount for a coupon that passed all
// eligibility checks. The result is always >= 0 and <= subtotal.
func discount(c *Coupon, subtotal money.Money) (money.Money, error) {
	switch c.Type {
	case TypeFixed:
		return money.Min(money.FromDecimal(c.Value), subtotal), nil
	case TypePercentage:
		amount := subtotal.Percent(c.Value)
		if c.MaxDiscount > 0 {
			amount = money.Min(amount, c.MaxDiscount)
		}
		return money.Min(amount.ClampZero(), subtotal), nil
	default:
		return money.Zero, errors.Errorf("unsupported coupon type: %q", c.Type)
	}
}

func containsUser(users []string, id string) bool {
	for _, u := range users {
		if u == id {
			return true
		}
	}
	return false
}
