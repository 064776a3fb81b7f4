package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
)

const (
	getCouponByCodeSQL = `SELECT code, type, value, max_discount, min_order_value,
		start_date, expiry_date, usage_limit, used_count, user_usage_limit,
		applicable_users, status
		FROM coupons WHERE code = $1`

	countRedemptionsSQL = `SELECT count(*) FROM coupon_redemptions
		WHERE coupon_code = $1 AND user_id = $2`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Reads only: the usage counter moves inside the order-create transaction
// (see OrderRepository.Create).
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountRedemptions returns the user's committed redemption count for a coupon.
func (r *CouponRepository) CountRedemptions(ctx context.Context, code, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, countRedemptionsSQL, coupon.NormalizeCode(code), userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions for coupon %q: %w", code, err)
	}
	return n, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		typ           string
		value         decimal.Decimal
		maxDiscount   int64
		minOrderValue int64
		startDate     *time.Time
		expiryDate    *time.Time
		status        string
	)
	err := row.Scan(
		&c.Code, &typ, &value, &maxDiscount, &minOrderValue,
		&startDate, &expiryDate, &c.UsageLimit, &c.UsedCount, &c.UserUsageLimit,
		&c.ApplicableUsers, &status,
	)
	c.Type = coupon.Type(typ)
	c.Value = value
	c.MaxDiscount = money.FromMinor(maxDiscount)
	c.MinOrderValue = money.FromMinor(minOrderValue)
	if startDate != nil {
		c.StartDate = *startDate
	}
	if expiryDate != nil {
		c.ExpiryDate = *expiryDate
	}
	c.Status = coupon.Status(status)
	return c, err
}
