package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/user"
)

const (
	selectUserColumns = `id, name, email, phone, role,
		referral_code, referred_by, commission_rate, wallet_balance`

	getUserByIDSQL = `SELECT ` + selectUserColumns + ` FROM users WHERE id = $1`

	getInfluencerByCodeSQL = `SELECT ` + selectUserColumns + ` FROM users
		WHERE referral_code = $1 AND role = 'influencer'`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL. It is a
// read-only directory: wallet balances are written only by the referral
// repository's atomic credit/debit.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a user by ID. Returns user.ErrNotFound when absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// FindInfluencerByReferralCode resolves a referral code to an influencer.
// Returns user.ErrNotFound when no influencer carries the code.
func (r *UserRepository) FindInfluencerByReferralCode(ctx context.Context, code string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getInfluencerByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding influencer by code %q: %w", code, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("finding influencer by code %q: %w", code, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u      user.User
		role   string
		rate   decimal.Decimal
		wallet int64
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &role,
		&u.ReferralCode, &u.ReferredBy, &rate, &wallet,
	)
	u.Role = user.Role(role)
	u.CommissionRate = rate
	u.WalletBalance = money.FromMinor(wallet)
	return u, err
}
