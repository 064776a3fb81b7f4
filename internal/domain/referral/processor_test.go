package referral

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/order"
	"github.com/caremart/checkout/internal/domain/user"
)

type memUsers struct {
	users map[string]*user.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindInfluencerByReferralCode(_ context.Context, code string) (*user.User, error) {
	for _, u := range m.users {
		if u.Role == user.RoleInfluencer && u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

// memUsages mimics the repository's transactional semantics: settle inserts
// at most one row per order and credits the wallet; cancel flips the row and
// debits.
type memUsages struct {
	usages  map[string]*Usage
	wallets map[string]money.Money
}

func newMemUsages() *memUsages {
	return &memUsages{
		usages:  map[string]*Usage{},
		wallets: map[string]money.Money{},
	}
}

func (m *memUsages) FindByOrder(_ context.Context, orderNumber string) (*Usage, error) {
	u, ok := m.usages[orderNumber]
	if !ok {
		return nil, ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsages) SettleAndCredit(_ context.Context, u *Usage) error {
	if _, ok := m.usages[u.OrderNumber]; ok {
		return ErrAlreadySettled
	}
	cp := *u
	m.usages[u.OrderNumber] = &cp
	m.wallets[u.InfluencerID] = m.wallets[u.InfluencerID].Add(u.RewardAmount)
	return nil
}

func (m *memUsages) CancelAndDebit(_ context.Context, orderNumber string) (*Usage, money.Money, error) {
	u, ok := m.usages[orderNumber]
	if !ok || u.Status != StatusCompleted {
		return nil, money.Zero, ErrUsageNotFound
	}
	u.Status = StatusCancelled
	m.wallets[u.InfluencerID] = m.wallets[u.InfluencerID].Sub(u.RewardAmount)
	cp := *u
	return &cp, m.wallets[u.InfluencerID], nil
}

func (m *memUsages) ListByInfluencer(_ context.Context, influencerID string) ([]Usage, error) {
	var out []Usage
	for _, u := range m.usages {
		if u.InfluencerID == influencerID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func testUsers() *memUsers {
	return &memUsers{users: map[string]*user.User{
		"inf-1": {
			ID:             "inf-1",
			Name:           "Dr. Mehta",
			Role:           user.RoleInfluencer,
			ReferralCode:   "DRMEHTA",
			CommissionRate: decimal.NewFromInt(10),
		},
		"inf-2": {
			ID:             "inf-2",
			Name:           "Dr. Rao",
			Role:           user.RoleInfluencer,
			ReferralCode:   "DRRAO",
			CommissionRate: decimal.RequireFromString("7.5"),
		},
		"inf-free": {
			ID:             "inf-free",
			Name:           "Dr. Iyer",
			Role:           user.RoleInfluencer,
			ReferralCode:   "DRIYER",
			CommissionRate: decimal.Zero,
		},
		"cust-referred": {
			ID:         "cust-referred",
			Name:       "Asha",
			Role:       user.RoleCustomer,
			ReferredBy: "inf-1",
		},
		"cust-plain": {
			ID:   "cust-plain",
			Role: user.RoleCustomer,
		},
	}}
}

func paidOrder(number, userID, referralCode string, total money.Money) *order.Order {
	return &order.Order{
		ID:            "id-" + number,
		Number:        number,
		UserID:        userID,
		TotalAmount:   total,
		ReferralCode:  referralCode,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPaid,
	}
}

func TestProcessorOrderPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("SettlesSignupReferrer", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-1", "cust-referred", "", money.FromMinor(130000))
		require.NoError(t, p.OrderPaid(ctx, o))

		u, err := usages.FindByOrder(ctx, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "inf-1", u.InfluencerID)
		assert.Equal(t, "DRMEHTA", u.ReferralCode)
		assert.Equal(t, StatusCompleted, u.Status)
		assert.Equal(t, money.FromMinor(13000), u.RewardAmount)
		assert.Equal(t, "Asha", u.ReferredUser.Name)
		assert.Equal(t, money.FromMinor(13000), usages.wallets["inf-1"])
	})

	t.Run("OrderCodeWinsOverSignupReferrer", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-2", "cust-referred", "DRRAO", money.FromMinor(100000))
		require.NoError(t, p.OrderPaid(ctx, o))

		u, err := usages.FindByOrder(ctx, "ORD-2")
		require.NoError(t, err)
		assert.Equal(t, "inf-2", u.InfluencerID)
		// 7.5% of 1000.00
		assert.Equal(t, money.FromMinor(7500), u.RewardAmount)
	})

	t.Run("UnknownCodeFallsBackToReferrer", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-3", "cust-referred", "NOSUCH", money.FromMinor(50000))
		require.NoError(t, p.OrderPaid(ctx, o))

		u, err := usages.FindByOrder(ctx, "ORD-3")
		require.NoError(t, err)
		assert.Equal(t, "inf-1", u.InfluencerID)
	})

	t.Run("NoAttributionNoSettlement", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-4", "cust-plain", "", money.FromMinor(50000))
		require.NoError(t, p.OrderPaid(ctx, o))

		_, err := usages.FindByOrder(ctx, "ORD-4")
		assert.ErrorIs(t, err, ErrUsageNotFound)
		assert.Empty(t, usages.wallets)
	})

	t.Run("ZeroCommissionSettlesNothing", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-Z", "cust-plain", "DRIYER", money.FromMinor(50000))
		require.NoError(t, p.OrderPaid(ctx, o))

		_, err := usages.FindByOrder(ctx, "ORD-Z")
		assert.ErrorIs(t, err, ErrUsageNotFound)
		assert.Empty(t, usages.wallets)
	})

	t.Run("RedeliveryCreditsOnce", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-5", "cust-referred", "", money.FromMinor(130000))
		for i := 0; i < 3; i++ {
			require.NoError(t, p.OrderPaid(ctx, o))
		}

		assert.Equal(t, money.FromMinor(13000), usages.wallets["inf-1"])
		got, err := usages.ListByInfluencer(ctx, "inf-1")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestProcessorOrderReversed(t *testing.T) {
	ctx := context.Background()

	t.Run("ReversalNetsZero", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-10", "cust-referred", "", money.FromMinor(130000))
		require.NoError(t, p.OrderPaid(ctx, o))
		require.NoError(t, p.OrderReversed(ctx, o))

		assert.Equal(t, money.Zero, usages.wallets["inf-1"])

		u, err := usages.FindByOrder(ctx, "ORD-10")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, u.Status)
	})

	t.Run("ReversalIdempotent", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-11", "cust-referred", "", money.FromMinor(130000))
		require.NoError(t, p.OrderPaid(ctx, o))
		require.NoError(t, p.OrderReversed(ctx, o))
		require.NoError(t, p.OrderReversed(ctx, o))

		assert.Equal(t, money.Zero, usages.wallets["inf-1"])
	})

	t.Run("NothingSettledIsNoop", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-12", "cust-plain", "", money.FromMinor(50000))
		require.NoError(t, p.OrderReversed(ctx, o))
	})

	t.Run("NegativeBalanceFlagged", func(t *testing.T) {
		usages := newMemUsages()
		core, logs := observer.New(zap.WarnLevel)
		p := NewProcessor(usages, testUsers(), zap.New(core))

		o := paidOrder("ORD-13", "cust-referred", "", money.FromMinor(130000))
		require.NoError(t, p.OrderPaid(ctx, o))

		// The influencer withdrew the reward before the refund landed.
		usages.wallets["inf-1"] = money.FromMinor(5000)

		require.NoError(t, p.OrderReversed(ctx, o))
		assert.Equal(t, money.FromMinor(-8000), usages.wallets["inf-1"])

		entries := logs.FilterMessageSnippet("flagging for review").All()
		require.Len(t, entries, 1)
	})

	t.Run("NoDoubleSettleAfterReversal", func(t *testing.T) {
		usages := newMemUsages()
		p := NewProcessor(usages, testUsers(), nil)

		o := paidOrder("ORD-14", "cust-referred", "", money.FromMinor(130000))
		require.NoError(t, p.OrderPaid(ctx, o))
		require.NoError(t, p.OrderReversed(ctx, o))

		// A late duplicate of the paid event must not settle again: the
		// cancelled usage row blocks it.
		require.NoError(t, p.OrderPaid(ctx, o))
		assert.Equal(t, money.Zero, usages.wallets["inf-1"])
	})
}
