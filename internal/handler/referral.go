package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/caremart/checkout/internal/domain/referral"
	"github.com/caremart/checkout/internal/domain/user"
)

type referralUsageResponse struct {
	ID           string    `json:"id"`
	ReferralCode string    `json:"referral_code"`
	OrderNumber  string    `json:"order_number"`
	ReferredUser string    `json:"referred_user_id"`
	OrderAmount  string    `json:"order_amount"`
	RewardAmount string    `json:"reward_amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type referralSummaryResponse struct {
	InfluencerID  string                  `json:"influencer_id"`
	WalletBalance string                  `json:"wallet_balance"`
	Usages        []referralUsageResponse `json:"usages"`
}

// ListUserReferrals handles GET /users/{userID}/referrals: an influencer's
// commission history with their current wallet balance.
func (h *Handler) ListUserReferrals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		zctx.From(r.Context()).Error("get user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	usages, err := h.referrals.ListByInfluencer(r.Context(), userID)
	if err != nil {
		zctx.From(r.Context()).Error("list referral usages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := referralSummaryResponse{
		InfluencerID:  u.ID,
		WalletBalance: u.WalletBalance.String(),
		Usages:        make([]referralUsageResponse, len(usages)),
	}
	for i, usage := range usages {
		resp.Usages[i] = toUsageResponse(usage)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toUsageResponse(u referral.Usage) referralUsageResponse {
	return referralUsageResponse{
		ID:           u.ID,
		ReferralCode: u.ReferralCode,
		OrderNumber:  u.OrderNumber,
		ReferredUser: u.ReferredUser.UserID,
		OrderAmount:  u.OrderAmount.String(),
		RewardAmount: u.RewardAmount.String(),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
	}
}
