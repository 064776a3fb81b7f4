package order

import (
	"github.com/caremart/checkout/internal/domain/coupon"
	"github.com/caremart/checkout/internal/domain/money"
)

// ItemRequest is a client-supplied order line: product reference and quantity
// only. Prices always come from the catalog.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Pricing holds the computed monetary breakdown of an order.
type Pricing struct {
	Items         []Item
	Subtotal      money.Money
	DiscountValue money.Money
	DiscountType  coupon.Type
	CouponApplied bool
	TotalAmount   money.Money
}

// PriceItems recomputes each line total from the catalog unit price and
// returns the priced lines plus their subtotal. It fails with ErrEmptyItems
// for an empty cart, InvalidQuantityError for any quantity below one, and
// ProductNotFoundError for a product missing from the price map.
func PriceItems(reqs []ItemRequest, unitPrices map[string]money.Money) ([]Item, money.Money, error) {
	if len(reqs) == 0 {
		return nil, money.Zero, ErrEmptyItems
	}

	items := make([]Item, len(reqs))
	subtotal := money.Zero
	for i, req := range reqs {
		if req.Quantity < 1 {
			return nil, money.Zero, &InvalidQuantityError{ProductID: req.ProductID}
		}
		price, ok := unitPrices[req.ProductID]
		if !ok {
			return nil, money.Zero, &ProductNotFoundError{ProductID: req.ProductID}
		}

		lineTotal := money.FromMinor(price.Minor() * int64(req.Quantity))
		items[i] = Item{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: price,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	return items, subtotal, nil
}

// ComputePricing derives the order totals from priced lines, shipping cost,
// and an already-validated discount. Total is clamped at zero.
func ComputePricing(items []Item, subtotal, shipping, discount money.Money, discountType coupon.Type) Pricing {
	p := Pricing{
		Items:         items,
		Subtotal:      subtotal,
		TotalAmount:   subtotal.Add(shipping).Sub(discount).ClampZero(),
		DiscountValue: discount,
	}
	if discount > 0 {
		p.DiscountType = discountType
		p.CouponApplied = true
	}
	return p
}
