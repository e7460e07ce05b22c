package cart

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/shopspring/decimal"
)

// Item is a cart line; Quantity >= 1 always holds in storage.
type Item struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type Line struct {
	Item
	Product catalog.Product `json:"product"`
	Total   decimal.Decimal `json:"total"`
}

type View struct {
	Lines    []Line          `json:"lines"`
	Missing  []string        `json:"missing,omitempty"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Resolve joins items to products. Items whose product no longer exists
// are reported in Missing and left out of Lines and Subtotal.
func Resolve(items []Item, products map[string]catalog.Product) View {
	v := View{Subtotal: decimal.Zero}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			v.Missing = append(v.Missing, it.ProductID)
			continue
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		v.Lines = append(v.Lines, Line{Item: it, Product: p, Total: total})
		v.Subtotal = v.Subtotal.Add(total)
	}
	return v
}

func ProductIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
