package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("product not found")
	// ErrProductGone: product dihapus di antara baca cart dan apply checkout.
	ErrProductGone = errors.New("product no longer exists")
	ErrOutOfStock  = errors.New("out of stock")
)

type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockQty   int             `json:"stock_qty"`
	OrderedQty int             `json:"ordered_qty"`
	VendorID   string          `json:"vendor_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Available = stockQty - orderedQty, never negative.
func (p Product) Available() int {
	if n := p.StockQty - p.OrderedQty; n > 0 {
		return n
	}
	return 0
}

type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s out of stock: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }
