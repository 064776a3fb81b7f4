package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
	"github.com/caremart/checkout/internal/domain/product"
)

type memProducts struct {
	products map[string]product.Product
}

func (m *memProducts) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memCoupons struct {
	mu          sync.Mutex
	coupons     map[string]*coupon.Coupon
	redemptions map[string]int
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) CountRedemptions(_ context.Context, code, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redemptions[code+"|"+userID], nil
}

// memOrders mimics the transactional repository: the coupon-usage increment
// is conditional and atomic with the order insert.
type memOrders struct {
	mu      sync.Mutex
	seq     int64
	orders  map[string]*Order
	coupons *memCoupons
}

func newMemOrders(coupons *memCoupons) *memOrders {
	return &memOrders{orders: map[string]*Order{}, coupons: coupons}
}

func (m *memOrders) NextNumber(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return 1000 + m.seq, nil
}

func (m *memOrders) Create(_ context.Context, o *Order, redeem *Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if redeem != nil {
		m.coupons.mu.Lock()
		c := m.coupons.coupons[redeem.Code]
		if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
			m.coupons.mu.Unlock()
			return coupon.ErrCouponExhausted
		}
		if m.coupons.redemptions[redeem.Code+"|"+redeem.UserID] >= c.PerUserLimit() {
			m.coupons.mu.Unlock()
			return coupon.ErrUserLimitReached
		}
		c.UsedCount++
		m.coupons.redemptions[redeem.Code+"|"+redeem.UserID]++
		m.coupons.mu.Unlock()
	}

	cp := *o
	m.orders[o.Number] = &cp
	return nil
}

func (m *memOrders) GetByNumber(_ context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, number string, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return ErrNotFound
	}
	o.Status = s
	return nil
}

func (m *memOrders) UpdatePaymentStatus(_ context.Context, number string, ps PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = ps
	return nil
}

// eventRecorder captures settlement notifications.
type eventRecorder struct {
	mu       sync.Mutex
	paid     []string
	reversed []string
	failPaid error // returned by the next OrderPaid call, then cleared
}

func (e *eventRecorder) OrderPaid(_ context.Context, o *Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failPaid != nil {
		err := e.failPaid
		e.failPaid = nil
		return err
	}
	e.paid = append(e.paid, o.Number)
	return nil
}

func (e *eventRecorder) OrderReversed(_ context.Context, o *Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reversed = append(e.reversed, o.Number)
	return nil
}

type serviceFixture struct {
	svc     *Service
	orders  *memOrders
	coupons *memCoupons
	events  *eventRecorder
}

func newServiceFixture(coupons map[string]*coupon.Coupon) *serviceFixture {
	products := &memProducts{products: map[string]product.Product{
		"med-001": {ID: "med-001", Name: "Paracetamol", Price: decimal.RequireFromString("120.00")},
		"sup-001": {ID: "sup-001", Name: "Vitamin D3", Price: decimal.RequireFromString("590.00")},
	}}
	couponRepo := &memCoupons{coupons: coupons, redemptions: map[string]int{}}
	orderRepo := newMemOrders(couponRepo)
	events := &eventRecorder{}

	return &serviceFixture{
		svc:     NewService(products, couponRepo, orderRepo, events),
		orders:  orderRepo,
		coupons: couponRepo,
		events:  events,
	}
}

func activeCoupon(usageLimit int) map[string]*coupon.Coupon {
	return map[string]*coupon.Coupon{
		"SAVE10": {
			Code:        "SAVE10",
			Type:        coupon.TypePercentage,
			Value:       decimal.NewFromInt(10),
			MaxDiscount: money.FromMinor(10000),
			UsageLimit:  usageLimit,
			Status:      coupon.StatusActive,
		},
	}
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("WithoutCoupon", func(t *testing.T) {
		f := newServiceFixture(nil)

		o, err := f.svc.Create(ctx, CreateRequest{
			UserID: "u1",
			Items: []ItemRequest{
				{ProductID: "med-001", Quantity: 2},
				{ProductID: "sup-001", Quantity: 1},
			},
			ShippingCost: money.FromMinor(5000),
		})
		require.NoError(t, err)

		assert.Equal(t, money.FromMinor(83000), o.Subtotal)
		assert.Equal(t, money.FromMinor(88000), o.TotalAmount)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
		assert.NotEmpty(t, o.ID)
		assert.Regexp(t, `^ORD-\d{8}-\d$`, o.Number)
		assert.False(t, o.CouponApplied)

		persisted, err := f.svc.Get(ctx, o.Number)
		require.NoError(t, err)
		assert.Equal(t, o.TotalAmount, persisted.TotalAmount)
	})

	t.Run("WithCoupon", func(t *testing.T) {
		f := newServiceFixture(activeCoupon(10))

		o, err := f.svc.Create(ctx, CreateRequest{
			UserID:     "u1",
			Items:      []ItemRequest{{ProductID: "sup-001", Quantity: 1}},
			CouponCode: "save10 ",
		})
		require.NoError(t, err)

		assert.True(t, o.CouponApplied)
		assert.Equal(t, "SAVE10", o.CouponCode)
		assert.Equal(t, money.FromMinor(5900), o.DiscountValue)
		assert.Equal(t, money.FromMinor(53100), o.TotalAmount)
		assert.Equal(t, 1, f.coupons.coupons["SAVE10"].UsedCount)
	})

	t.Run("EmptyItems", func(t *testing.T) {
		f := newServiceFixture(nil)

		_, err := f.svc.Create(ctx, CreateRequest{UserID: "u1"})
		assert.ErrorIs(t, err, ErrEmptyItems)
	})

	t.Run("InvalidCouponNoOrder", func(t *testing.T) {
		f := newServiceFixture(nil)

		_, err := f.svc.Create(ctx, CreateRequest{
			UserID:     "u1",
			Items:      []ItemRequest{{ProductID: "med-001", Quantity: 1}},
			CouponCode: "NOPE",
		})
		assert.ErrorIs(t, err, coupon.ErrInvalidCoupon)
		assert.Empty(t, f.orders.orders)
	})

	t.Run("PerUserLimit", func(t *testing.T) {
		f := newServiceFixture(activeCoupon(10))

		_, err := f.svc.Create(ctx, CreateRequest{
			UserID:     "u1",
			Items:      []ItemRequest{{ProductID: "med-001", Quantity: 1}},
			CouponCode: "SAVE10",
		})
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, CreateRequest{
			UserID:     "u1",
			Items:      []ItemRequest{{ProductID: "med-001", Quantity: 1}},
			CouponCode: "SAVE10",
		})
		assert.ErrorIs(t, err, coupon.ErrUserLimitReached)

		// A different user can still redeem.
		_, err = f.svc.Create(ctx, CreateRequest{
			UserID:     "u2",
			Items:      []ItemRequest{{ProductID: "med-001", Quantity: 1}},
			CouponCode: "SAVE10",
		})
		assert.NoError(t, err)
	})
}

// Concurrent checkouts racing for a coupon's last use: exactly one must win
// and no order may be persisted for the losers.
func TestServiceCreateCouponRace(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(activeCoupon(1))

	const attempts = 25

	var (
		mu        sync.Mutex
		succeeded int
		exhausted int
	)

	g := errgroup.Group{}
	for i := 0; i < attempts; i++ {
		userID := string(rune('a' + i))
		g.Go(func() error {
			_, err := f.svc.Create(ctx, CreateRequest{
				UserID:     userID,
				Items:      []ItemRequest{{ProductID: "med-001", Quantity: 1}},
				CouponCode: "SAVE10",
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, coupon.ErrCouponExhausted),
				errors.Is(err, coupon.ErrUsageLimitReached):
				// Losers see either outcome depending on whether the
				// winner committed before or after their validation read.
				exhausted++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, exhausted)
	assert.Equal(t, 1, f.coupons.coupons["SAVE10"].UsedCount)
	assert.Len(t, f.orders.orders, 1)
}

func TestServiceTransitionStatus(t *testing.T) {
	ctx := context.Background()

	create := func(t *testing.T, f *serviceFixture) *Order {
		t.Helper()
		o, err := f.svc.Create(ctx, CreateRequest{
			UserID: "u1",
			Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
		})
		require.NoError(t, err)
		return o
	}

	t.Run("HappyPath", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := create(t, f)

		for _, to := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
			updated, err := f.svc.TransitionStatus(ctx, o.Number, to)
			require.NoError(t, err)
			assert.Equal(t, to, updated.Status)
		}
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := create(t, f)

		_, err := f.svc.TransitionStatus(ctx, o.Number, StatusDelivered)

		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr)
		assert.Equal(t, "status", itErr.Field)
		assert.Equal(t, "pending", itErr.From)
		assert.Equal(t, "delivered", itErr.To)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := create(t, f)

		_, err := f.svc.TransitionStatus(ctx, o.Number, Status("teleported"))

		var itErr *InvalidTransitionError
		assert.ErrorAs(t, err, &itErr)
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newServiceFixture(nil)

		_, err := f.svc.TransitionStatus(ctx, "ORD-00000000-0", StatusProcessing)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CancelUnpaidNoReversal", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := create(t, f)

		_, err := f.svc.TransitionStatus(ctx, o.Number, StatusCancelled)
		require.NoError(t, err)
		assert.Empty(t, f.events.reversed)
	})

	t.Run("CancelPaidEmitsReversal", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := create(t, f)

		_, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.NoError(t, err)

		_, err = f.svc.TransitionStatus(ctx, o.Number, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, []string{o.Number}, f.events.reversed)
	})
}

func TestServiceTransitionPaymentStatus(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(nil)

	o, err := f.svc.Create(ctx, CreateRequest{
		UserID: "u1",
		Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
	})
	require.NoError(t, err)

	t.Run("PaidEmitsSettlement", func(t *testing.T) {
		updated, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, updated.PaymentStatus)
		assert.Equal(t, []string{o.Number}, f.events.paid)
	})

	t.Run("RefundEmitsReversal", func(t *testing.T) {
		updated, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentRefunded)
		require.NoError(t, err)
		assert.Equal(t, PaymentRefunded, updated.PaymentStatus)
		assert.Equal(t, []string{o.Number}, f.events.reversed)
	})

	t.Run("RefundTwiceRejected", func(t *testing.T) {
		_, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentRefunded)

		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr)
		assert.Equal(t, "payment_status", itErr.Field)
	})
}

func TestServiceConfirmRedelivery(t *testing.T) {
	ctx := context.Background()

	newOrder := func(t *testing.T, f *serviceFixture) *Order {
		t.Helper()
		o, err := f.svc.Create(ctx, CreateRequest{
			UserID: "u1",
			Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
		})
		require.NoError(t, err)
		return o
	}

	t.Run("DuplicateConfirmAbsorbed", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := newOrder(t, f)

		_, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.NoError(t, err)

		updated, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, updated.PaymentStatus)
		assert.Equal(t, []string{o.Number, o.Number}, f.events.paid)
	})

	t.Run("FailedSettlementRecoveredOnRetry", func(t *testing.T) {
		f := newServiceFixture(nil)
		o := newOrder(t, f)

		f.events.failPaid = errors.New("wallet store unavailable")
		_, err := f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.Error(t, err)

		// The status write landed before the settlement failed.
		stored, err := f.svc.Get(ctx, o.Number)
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, stored.PaymentStatus)
		assert.Empty(t, f.events.paid)

		// The provider retries: the confirm must settle, not 409.
		_, err = f.svc.TransitionPaymentStatus(ctx, o.Number, PaymentPaid)
		require.NoError(t, err)
		assert.Equal(t, []string{o.Number}, f.events.paid)
	})
}

func TestServiceQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("DoesNotConsumeUse", func(t *testing.T) {
		f := newServiceFixture(activeCoupon(10))

		p, err := f.svc.Quote(ctx, CreateRequest{
			UserID:     "u1",
			Items:      []ItemRequest{{ProductID: "sup-001", Quantity: 1}},
			CouponCode: "SAVE10",
		})
		require.NoError(t, err)

		assert.True(t, p.CouponApplied)
		assert.Equal(t, money.FromMinor(5900), p.DiscountValue)
		assert.Zero(t, f.coupons.coupons["SAVE10"].UsedCount)
		assert.Empty(t, f.orders.orders)
	})

	t.Run("DeterministicForSameInput", func(t *testing.T) {
		f := newServiceFixture(activeCoupon(10))
		req := CreateRequest{
			UserID:       "u1",
			Items:        []ItemRequest{{ProductID: "med-001", Quantity: 3}},
			ShippingCost: money.FromMinor(5000),
			CouponCode:   "SAVE10",
		}

		first, err := f.svc.Quote(ctx, req)
		require.NoError(t, err)
		second, err := f.svc.Quote(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestServiceListByUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(nil)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, CreateRequest{
			UserID: "u1",
			Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
		})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, CreateRequest{
		UserID: "u2",
		Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
	})
	require.NoError(t, err)

	orders, err := f.svc.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}

func TestServiceTimeIsInjectable(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	o, err := f.svc.Create(ctx, CreateRequest{
		UserID: "u1",
		Items:  []ItemRequest{{ProductID: "med-001", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, o.CreatedAt)
	assert.Equal(t, fixed, o.UpdatedAt)
}
