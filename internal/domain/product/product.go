package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. Price is the authoritative unit price: order
// pricing always reads it from here, never from the client.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	// RequiresPrescription marks items that need a verified prescription
	// before fulfilment can progress.
	RequiresPrescription bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
