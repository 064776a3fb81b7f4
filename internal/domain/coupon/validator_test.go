package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremart/checkout/internal/domain/money"
)

func TestValidate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	active := func(c Coupon) *Coupon {
		c.Status = StatusActive
		return &c
	}

	tests := []struct {
		name      string
		coupon    *Coupon
		subtotal  money.Money
		userID    string
		priorUses int
		want      money.Money
		wantErr   error
	}{
		{
			name: "inactive coupon",
			coupon: &Coupon{
				Code:   "OFF10",
				Type:   TypePercentage,
				Value:  decimal.NewFromInt(10),
				Status: StatusInactive,
			},
			subtotal: money.FromMinor(130000),
			wantErr:  ErrCouponInactive,
		},
		{
			name: "not yet started",
			coupon: active(Coupon{
				Code:      "SOON",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				StartDate: futureTime,
			}),
			subtotal: money.FromMinor(130000),
			wantErr:  ErrCouponExpired,
		},
		{
			name: "expired",
			coupon: active(Coupon{
				Code:       "OLD",
				Type:       TypePercentage,
				Value:      decimal.NewFromInt(10),
				ExpiryDate: pastTime,
			}),
			subtotal: money.FromMinor(130000),
			wantErr:  ErrCouponExpired,
		},
		{
			name: "window bounds are inclusive",
			coupon: active(Coupon{
				Code:       "TODAY",
				Type:       TypePercentage,
				Value:      decimal.NewFromInt(10),
				StartDate:  fixedNow,
				ExpiryDate: fixedNow,
			}),
			subtotal: money.FromMinor(130000),
			want:     money.FromMinor(13000),
		},
		{
			name: "subtotal below minimum",
			coupon: active(Coupon{
				Code:          "BIG",
				Type:          TypeFixed,
				Value:         decimal.NewFromInt(50),
				MinOrderValue: money.FromMinor(100000),
			}),
			subtotal: money.FromMinor(99999),
			wantErr:  ErrMinOrderNotMet,
		},
		{
			name: "user not on allow-list",
			coupon: active(Coupon{
				Code:            "VIP",
				Type:            TypeFixed,
				Value:           decimal.NewFromInt(50),
				ApplicableUsers: []string{"u1", "u2"},
			}),
			subtotal: money.FromMinor(130000),
			userID:   "u3",
			wantErr:  ErrUserNotEligible,
		},
		{
			name: "user on allow-list",
			coupon: active(Coupon{
				Code:            "VIP",
				Type:            TypeFixed,
				Value:           decimal.NewFromInt(50),
				ApplicableUsers: []string{"u1", "u2"},
			}),
			subtotal: money.FromMinor(130000),
			userID:   "u2",
			want:     money.FromMinor(5000),
		},
		{
			name: "usage limit reached",
			coupon: active(Coupon{
				Code:       "LIMITED",
				Type:       TypePercentage,
				Value:      decimal.NewFromInt(10),
				UsageLimit: 100,
				UsedCount:  100,
			}),
			subtotal: money.FromMinor(130000),
			wantErr:  ErrUsageLimitReached,
		},
		{
			name: "usage under limit",
			coupon: active(Coupon{
				Code:       "HASROOM",
				Type:       TypePercentage,
				Value:      decimal.NewFromInt(10),
				UsageLimit: 100,
				UsedCount:  99,
			}),
			subtotal: money.FromMinor(130000),
			want:     money.FromMinor(13000),
		},
		{
			name: "per-user limit defaults to one",
			coupon: active(Coupon{
				Code:  "ONCE",
				Type:  TypePercentage,
				Value: decimal.NewFromInt(10),
			}),
			subtotal:  money.FromMinor(130000),
			priorUses: 1,
			wantErr:   ErrUserLimitReached,
		},
		{
			name: "per-user limit above one",
			coupon: active(Coupon{
				Code:           "THRICE",
				Type:           TypePercentage,
				Value:          decimal.NewFromInt(10),
				UserUsageLimit: 3,
			}),
			subtotal:  money.FromMinor(130000),
			priorUses: 2,
			want:      money.FromMinor(13000),
		},
		{
			name: "percentage capped by max discount",
			coupon: active(Coupon{
				Code:        "CAP100",
				Type:        TypePercentage,
				Value:       decimal.NewFromInt(10),
				MaxDiscount: money.FromMinor(10000),
			}),
			// 10% of 1300.00 = 130.00, capped at 100.00.
			subtotal: money.FromMinor(130000),
			want:     money.FromMinor(10000),
		},
		{
			name: "percentage under max discount",
			coupon: active(Coupon{
				Code:        "CAP100",
				Type:        TypePercentage,
				Value:       decimal.NewFromInt(10),
				MaxDiscount: money.FromMinor(10000),
			}),
			subtotal: money.FromMinor(50000),
			want:     money.FromMinor(5000),
		},
		{
			name: "fixed discount capped at subtotal",
			coupon: active(Coupon{
				Code:  "MEGA",
				Type:  TypeFixed,
				Value: decimal.NewFromInt(2000),
			}),
			subtotal: money.FromMinor(130000),
			want:     money.FromMinor(130000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.coupon, tt.subtotal, tt.userID, tt.priorUses, fixedNow)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, money.Zero, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	c := &Coupon{Code: "WEIRD", Type: "bogo", Status: StatusActive}
	_, err := Validate(c, money.FromMinor(1000), "u1", 0, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported coupon type")
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
