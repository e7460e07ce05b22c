package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

const StatusActive = "active"

// validityBuffer tolerates clock/timezone skew on both window edges.
const validityBuffer = 24 * time.Hour

type Rule struct {
	ID          string              `json:"id"`
	Code        string              `json:"code"`
	Status      string              `json:"status"`
	StartDate   *time.Time          `json:"start_date,omitempty"`
	EndDate     *time.Time          `json:"end_date,omitempty"`
	Type        Type                `json:"discount_type"`
	Value       decimal.Decimal     `json:"discount_value"`
	MaxDiscount decimal.NullDecimal `json:"max_discount"`
}

func (r *Rule) IsValid(now time.Time) bool {
	if r == nil || r.Status != StatusActive {
		return false
	}
	if r.StartDate != nil && r.StartDate.After(now.Add(validityBuffer)) {
		return false
	}
	if r.EndDate != nil && r.EndDate.Before(now.Add(-validityBuffer)) {
		return false
	}
	return true
}

// Apply returns the discount amount and the payable total for subtotal.
// discount is clamped to [0, subtotal] and to MaxDiscount when set.
func (r *Rule) Apply(subtotal decimal.Decimal) (amount, total decimal.Decimal) {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	switch r.Type {
	case TypePercentage:
		amount = subtotal.Mul(r.Value).Div(decimal.NewFromInt(100))
	default:
		amount = r.Value
	}
	if r.MaxDiscount.Valid && amount.GreaterThan(r.MaxDiscount.Decimal) {
		amount = r.MaxDiscount.Decimal
	}
	amount = decimal.Min(decimal.Max(amount, decimal.Zero), subtotal).Round(2)
	total = decimal.Max(subtotal.Sub(amount), decimal.Zero)
	return amount, total
}
