package user

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/caremart/checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Role distinguishes the marketplace identities sharing the users table.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleInfluencer Role = "influencer"
	RoleDoctor     Role = "doctor"
	RoleAdmin      Role = "admin"
)

// User is a marketplace identity. Influencers additionally carry a referral
// code, a commission rate, and a wallet.
type User struct {
	ID    string
	Name  string
	Email string
	Phone string
	Role  Role

	// ReferralCode is the influencer's own code, empty for other roles.
	ReferralCode string
	// ReferredBy is the influencer ID recorded at signup, if any.
	ReferredBy string
	// CommissionRate is the influencer's commission percentage.
	CommissionRate decimal.Decimal
	// WalletBalance is the influencer's running commission balance. It is
	// mutated only by the referral repository's atomic credit/debit; no
	// other code path writes it.
	WalletBalance money.Money
}

// Repository provides directory lookups for users and influencers.
type Repository interface {
	// GetByID returns a user by ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*User, error)
	// FindInfluencerByReferralCode resolves a referral code to an active
	// influencer. Returns ErrNotFound when no influencer carries the code.
	FindInfluencerByReferralCode(ctx context.Context, code string) (*User, error)
}
