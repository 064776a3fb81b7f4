package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/referral"
)

const (
	selectUsageColumns = `id, influencer_id, referral_code,
		referred_user_id, referred_name, referred_email, referred_phone,
		order_number, order_amount, reward_amount, status, created_at`

	getUsageByOrderSQL = `SELECT ` + selectUsageColumns + `
		FROM referral_usages WHERE order_number = $1`

	listUsagesByInfluencerSQL = `SELECT ` + selectUsageColumns + `
		FROM referral_usages WHERE influencer_id = $1 ORDER BY created_at DESC`

	// ON CONFLICT DO NOTHING makes the insert the idempotence point: a
	// concurrent or redelivered settlement matches zero rows and the wallet
	// credit never runs.
	insertUsageSQL = `INSERT INTO referral_usages (id, influencer_id, referral_code,
		referred_user_id, referred_name, referred_email, referred_phone,
		order_number, order_amount, reward_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_number) DO NOTHING`

	creditWalletSQL = `UPDATE users SET wallet_balance = wallet_balance + $2 WHERE id = $1`

	cancelUsageSQL = `UPDATE referral_usages SET status = 'cancelled'
		WHERE order_number = $1 AND status = 'completed'
		RETURNING ` + selectUsageColumns

	debitWalletSQL = `UPDATE users SET wallet_balance = wallet_balance - $2
		WHERE id = $1 RETURNING wallet_balance`
)

var _ referral.Repository = (*ReferralRepository)(nil)

// ReferralRepository implements referral.Repository backed by PostgreSQL.
// Wallet balances are written exclusively here, always inside the same
// transaction as the usage row they belong to.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository returns a ReferralRepository that uses the given pool.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// FindByOrder returns the usage record for an order number.
func (r *ReferralRepository) FindByOrder(ctx context.Context, orderNumber string) (*referral.Usage, error) {
	rows, err := r.pool.Query(ctx, getUsageByOrderSQL, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("finding referral usage for order %q: %w", orderNumber, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUsage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, referral.ErrUsageNotFound
		}
		return nil, fmt.Errorf("finding referral usage for order %q: %w", orderNumber, err)
	}
	return &u, nil
}

// SettleAndCredit inserts the usage row and credits the influencer wallet as
// one atomic unit.
func (r *ReferralRepository) SettleAndCredit(ctx context.Context, u *referral.Usage) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertUsageSQL,
			u.ID, u.InfluencerID, u.ReferralCode,
			u.ReferredUser.UserID, u.ReferredUser.Name, u.ReferredUser.Email, u.ReferredUser.Phone,
			u.OrderNumber, u.OrderAmount.Minor(), u.RewardAmount.Minor(),
			string(u.Status), u.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting referral usage for order %q: %w", u.OrderNumber, err)
		}
		if tag.RowsAffected() == 0 {
			return referral.ErrAlreadySettled
		}

		if _, err := tx.Exec(ctx, creditWalletSQL, u.InfluencerID, u.RewardAmount.Minor()); err != nil {
			return fmt.Errorf("crediting wallet of influencer %q: %w", u.InfluencerID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, referral.ErrAlreadySettled) {
			return err
		}
		return fmt.Errorf("settling referral for order %q: %w", u.OrderNumber, err)
	}
	return nil
}

// CancelAndDebit flips a completed usage to cancelled and debits the reward
// in one atomic unit. The debit proceeds even if it drives the balance
// negative; the caller decides whether to flag the result.
func (r *ReferralRepository) CancelAndDebit(ctx context.Context, orderNumber string) (*referral.Usage, money.Money, error) {
	var (
		u       referral.Usage
		balance money.Money
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, cancelUsageSQL, orderNumber)
		if err != nil {
			return fmt.Errorf("cancelling referral usage for order %q: %w", orderNumber, err)
		}

		u, err = pgx.CollectExactlyOneRow(rows, scanUsage)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return referral.ErrUsageNotFound
			}
			return fmt.Errorf("cancelling referral usage for order %q: %w", orderNumber, err)
		}

		var after int64
		err = tx.QueryRow(ctx, debitWalletSQL, u.InfluencerID, u.RewardAmount.Minor()).Scan(&after)
		if err != nil {
			return fmt.Errorf("debiting wallet of influencer %q: %w", u.InfluencerID, err)
		}
		balance = money.FromMinor(after)
		return nil
	})
	if err != nil {
		if errors.Is(err, referral.ErrUsageNotFound) {
			return nil, money.Zero, err
		}
		return nil, money.Zero, fmt.Errorf("reversing referral for order %q: %w", orderNumber, err)
	}
	return &u, balance, nil
}

// ListByInfluencer returns an influencer's usage history, newest first.
func (r *ReferralRepository) ListByInfluencer(ctx context.Context, influencerID string) ([]referral.Usage, error) {
	rows, err := r.pool.Query(ctx, listUsagesByInfluencerSQL, influencerID)
	if err != nil {
		return nil, fmt.Errorf("listing referral usages for influencer %q: %w", influencerID, err)
	}
	return pgx.CollectRows(rows, scanUsage)
}

func scanUsage(row pgx.CollectableRow) (referral.Usage, error) {
	var (
		u           referral.Usage
		orderAmount int64
		reward      int64
		status      string
	)
	err := row.Scan(
		&u.ID, &u.InfluencerID, &u.ReferralCode,
		&u.ReferredUser.UserID, &u.ReferredUser.Name, &u.ReferredUser.Email, &u.ReferredUser.Phone,
		&u.OrderNumber, &orderAmount, &reward, &status, &u.CreatedAt,
	)
	u.OrderAmount = money.FromMinor(orderAmount)
	u.RewardAmount = money.FromMinor(reward)
	u.Status = referral.Status(status)
	return u, err
}
