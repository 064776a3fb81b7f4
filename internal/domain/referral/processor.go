package referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caremart/checkout/internal/domain/order"
	"github.com/caremart/checkout/internal/domain/user"
)

// Compile-time check: the processor is the ledger's settlement sink.
var _ order.PaymentEvents = (*Processor)(nil)

// Processor settles at-most-one commission per paid order and reverses it on
// refund or late cancellation. Both operations are idempotent: redelivered
// events are absorbed as no-ops.
type Processor struct {
	usages Repository
	users  user.Repository
	lg     *zap.Logger
	now    func() time.Time
}

// NewProcessor creates a commission processor.
func NewProcessor(usages Repository, users user.Repository, lg *zap.Logger) *Processor {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Processor{
		usages: usages,
		users:  users,
		lg:     lg,
		now:    time.Now,
	}
}

// OrderPaid settles the commission for a paid order that carries a referral
// attribution. Orders without attribution are skipped silently.
func (p *Processor) OrderPaid(ctx context.Context, o *order.Order) error {
	existing, err := p.usages.FindByOrder(ctx, o.Number)
	if err != nil && !errors.Is(err, ErrUsageNotFound) {
		return errors.Wrap(err, "check existing settlement")
	}
	// Usage rows are only ever inserted as completed, so any existing row
	// means this delivery is a duplicate. A cancelled row stays cancelled:
	// a reversal must not be undone by a late redelivery.
	if existing != nil {
		p.lg.Info("settlement already recorded, skipping",
			zap.String("order", o.Number),
			zap.String("status", string(existing.Status)),
		)
		return nil
	}

	influencer, code, err := p.resolveAttribution(ctx, o)
	if err != nil {
		return err
	}
	if influencer == nil {
		return nil
	}

	reward := o.TotalAmount.Percent(influencer.CommissionRate)
	if reward.IsZero() {
		// Zero-rate influencers and sub-paisa commissions settle nothing.
		p.lg.Info("commission rounds to zero, skipping",
			zap.String("order", o.Number),
			zap.String("influencer", influencer.ID),
		)
		return nil
	}

	purchaser, err := p.users.GetByID(ctx, o.UserID)
	if err != nil {
		return errors.Wrapf(err, "get purchaser %s", o.UserID)
	}

	u := &Usage{
		ID:           uuid.New().String(),
		InfluencerID: influencer.ID,
		ReferralCode: code,
		ReferredUser: ReferredUser{
			UserID: purchaser.ID,
			Name:   purchaser.Name,
			Email:  purchaser.Email,
			Phone:  purchaser.Phone,
		},
		OrderNumber:  o.Number,
		OrderAmount:  o.TotalAmount,
		RewardAmount: reward,
		Status:       StatusCompleted,
		CreatedAt:    p.now(),
	}

	if err := p.usages.SettleAndCredit(ctx, u); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			// A concurrent delivery won the insert. Absorb.
			p.lg.Info("concurrent settlement detected, skipping", zap.String("order", o.Number))
			return nil
		}
		return errors.Wrap(err, "settle and credit")
	}

	p.lg.Info("commission settled",
		zap.String("order", o.Number),
		zap.String("influencer", influencer.ID),
		zap.String("reward", u.RewardAmount.String()),
	)
	return nil
}

// OrderReversed cancels a settled commission after a refund or a
// post-payment cancellation. A negative wallet balance after the debit is
// permitted but flagged for manual review.
func (p *Processor) OrderReversed(ctx context.Context, o *order.Order) error {
	u, balance, err := p.usages.CancelAndDebit(ctx, o.Number)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			// Nothing was settled for this order, or it was already reversed.
			return nil
		}
		return errors.Wrap(err, "cancel and debit")
	}

	if balance.IsNegative() {
		p.lg.Warn("wallet balance negative after reversal, flagging for review",
			zap.String("order", o.Number),
			zap.String("influencer", u.InfluencerID),
			zap.String("balance", balance.String()),
		)
	} else {
		p.lg.Info("commission reversed",
			zap.String("order", o.Number),
			zap.String("influencer", u.InfluencerID),
			zap.String("reward", u.RewardAmount.String()),
		)
	}
	return nil
}

// resolveAttribution picks the commission recipient for an order. An
// order-level referral code wins when it maps to an active influencer;
// otherwise the purchaser's signup referrer applies. Orders with neither
// yield no attribution.
func (p *Processor) resolveAttribution(ctx context.Context, o *order.Order) (*user.User, string, error) {
	if o.ReferralCode != "" {
		influencer, err := p.users.FindInfluencerByReferralCode(ctx, o.ReferralCode)
		if err == nil {
			return influencer, o.ReferralCode, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, "", errors.Wrapf(err, "resolve referral code %s", o.ReferralCode)
		}
		// Unknown code: fall through to the signup referrer.
	}

	purchaser, err := p.users.GetByID(ctx, o.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", errors.Wrapf(err, "get purchaser %s", o.UserID)
	}
	if purchaser.ReferredBy == "" {
		return nil, "", nil
	}

	influencer, err := p.users.GetByID(ctx, purchaser.ReferredBy)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", errors.Wrapf(err, "get influencer %s", purchaser.ReferredBy)
	}
	return influencer, influencer.ReferralCode, nil
}
