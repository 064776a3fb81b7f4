package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/order"
)

const (
	nextOrderNumberSQL = `SELECT nextval('order_number_seq')`

	// Conditional increment: matches zero rows when the coupon is inactive
	// or the limit is already reached, closing the race window between
	// validation and commit.
	incrementCouponUsesSQL = `UPDATE coupons
		SET used_count = used_count + 1
		WHERE code = $1 AND status = 'active'
		  AND (usage_limit = 0 OR used_count < usage_limit)`

	// Conditional insert: re-checks the per-user cap inside the transaction.
	insertRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_code, user_id, order_number)
		SELECT $1, $2, $3
		WHERE (SELECT count(*) FROM coupon_redemptions WHERE coupon_code = $1 AND user_id = $2)
		    < (SELECT GREATEST(user_usage_limit, 1) FROM coupons WHERE code = $1)`

	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, items,
		subtotal, shipping_cost, discount_value, total_amount,
		coupon_code, discount_type, coupon_applied, referral_code,
		status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	selectOrderColumns = `id, order_number, user_id, items,
		subtotal, shipping_cost, discount_value, total_amount,
		coupon_code, discount_type, coupon_applied, referral_code,
		status, payment_status, created_at, updated_at`

	getOrderByNumberSQL = `SELECT ` + selectOrderColumns + ` FROM orders WHERE order_number = $1`

	listOrdersByUserSQL = `SELECT ` + selectOrderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE order_number = $1`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2, updated_at = now()
		WHERE order_number = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NextNumber reserves the next value of the order number sequence.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, nextOrderNumberSQL).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return seq, nil
}

// Create persists a new order. When a redemption is present, the coupon
// counter increment, the redemption record, and the order insert commit in
// one transaction; a failed conditional increment aborts everything with
// coupon.ErrCouponExhausted (or coupon.ErrUserLimitReached for the per-user
// cap), leaving no order behind.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, redeem *order.Redemption) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if redeem != nil {
			tag, err := tx.Exec(ctx, incrementCouponUsesSQL, redeem.Code)
			if err != nil {
				return fmt.Errorf("incrementing uses for coupon %q: %w", redeem.Code, err)
			}
			if tag.RowsAffected() == 0 {
				return coupon.ErrCouponExhausted
			}

			tag, err = tx.Exec(ctx, insertRedemptionSQL, redeem.Code, redeem.UserID, o.Number)
			if err != nil {
				return fmt.Errorf("recording redemption of coupon %q: %w", redeem.Code, err)
			}
			if tag.RowsAffected() == 0 {
				return coupon.ErrUserLimitReached
			}
		}

		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Number, o.UserID, itemsJSON,
			o.Subtotal.Minor(), o.ShippingCost.Minor(), o.DiscountValue.Minor(), o.TotalAmount.Minor(),
			o.CouponCode, string(o.DiscountType), o.CouponApplied, o.ReferralCode,
			string(o.Status), string(o.PaymentStatus), o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting order %q: %w", o.Number, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, coupon.ErrCouponExhausted) || errors.Is(err, coupon.ErrUserLimitReached) {
			return err
		}
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

// GetByNumber returns an order by its external number.
// Returns order.ErrNotFound when absent.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	return &o, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus writes a new fulfilment status. The transition table is
// enforced by the order service.
func (r *OrderRepository) UpdateStatus(ctx context.Context, number string, s order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, number, string(s))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdatePaymentStatus writes a new payment status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, number string, ps order.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, number, string(ps))
	if err != nil {
		return fmt.Errorf("updating payment status of order %q: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		subtotal      int64
		shipping      int64
		discount      int64
		total         int64
		discountType  string
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON,
		&subtotal, &shipping, &discount, &total,
		&o.CouponCode, &discountType, &o.CouponApplied, &o.ReferralCode,
		&status, &paymentStatus, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling items of order %q: %w", o.Number, err)
	}
	o.Subtotal = money.FromMinor(subtotal)
	o.ShippingCost = money.FromMinor(shipping)
	o.DiscountValue = money.FromMinor(discount)
	o.TotalAmount = money.FromMinor(total)
	o.DiscountType = coupon.Type(discountType)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, nil
}
