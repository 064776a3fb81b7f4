package referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/caremart/checkout/internal/domain/money"
)

// Status is the settlement state of a referral usage record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrUsageNotFound is returned when no referral usage exists for an order.
	ErrUsageNotFound = errors.New("referral usage not found")
	// ErrAlreadySettled is returned by the repository when the unique
	// order-number constraint shows a settlement already happened. The
	// processor absorbs it as an idempotence no-op.
	ErrAlreadySettled = errors.New("referral already settled for order")
)

// ReferredUser is a snapshot of the purchasing user frozen into the usage
// record at settlement time.
type ReferredUser struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// Usage is an immutable record of one commission-bearing referral event.
// At most one exists per order number.
type Usage struct {
	ID           string
	InfluencerID string
	ReferralCode string
	ReferredUser ReferredUser
	OrderNumber  string
	OrderAmount  money.Money
	RewardAmount money.Money
	Status       Status
	CreatedAt    time.Time
}

// Repository owns the two atomic settlement units: usage-insert plus wallet
// credit, and usage-cancel plus wallet debit. A crash between the halves of
// either pair must not be observable.
type Repository interface {
	// FindByOrder returns the usage record for an order number.
	// Returns ErrUsageNotFound when none exists.
	FindByOrder(ctx context.Context, orderNumber string) (*Usage, error)
	// SettleAndCredit inserts the usage row with StatusCompleted and credits
	// the influencer's wallet in one transaction. Returns ErrAlreadySettled
	// when a row for the order already exists, without touching the wallet.
	SettleAndCredit(ctx context.Context, u *Usage) error
	// CancelAndDebit flips a completed usage to cancelled and debits the
	// reward from the influencer's wallet in one transaction, returning the
	// cancelled usage and the wallet balance after the debit. Returns
	// ErrUsageNotFound when no completed usage exists for the order.
	CancelAndDebit(ctx context.Context, orderNumber string) (*Usage, money.Money, error)
	// ListByInfluencer returns an influencer's usage history, newest first.
	ListByInfluencer(ctx context.Context, influencerID string) ([]Usage, error)
}
