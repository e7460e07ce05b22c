package discount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("discount code not found")
	ErrNotActive = errors.New("discount code is not active")
	ErrEmptyCode = errors.New("discount code is empty")
)

// Field is a column a code may live in. Legacy rows used promo_code or
// coupon_code before code existed.
type Field string

const (
	FieldCode       Field = "code"
	FieldPromoCode  Field = "promo_code"
	FieldCouponCode Field = "coupon_code"
)

var lookupFields = []Field{FieldCode, FieldPromoCode, FieldCouponCode}

type Store interface {
	// FindBy returns nil, nil when no row matches.
	FindBy(ctx context.Context, field Field, code string) (*Rule, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type Validator struct {
	Store Store
	Cache Cache // optional
	Log   *logger.Logger
	Now   func() time.Time
}

type Quote struct {
	Rule     *Rule           `json:"rule"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Lookup tries the code as typed, upper-cased and lower-cased, first on
// code and then on the legacy fields.
func (v *Validator) Lookup(ctx context.Context, code string) (*Rule, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	key := fmt.Sprintf(redisx.KeyDiscount, code)
	if r := v.cached(ctx, key); r != nil {
		return r, nil
	}

	variants := casings(code)
	for _, f := range lookupFields {
		for _, c := range variants {
			r, err := v.Store.FindBy(ctx, f, c)
			if err != nil {
				return nil, err
			}
			if r != nil {
				if r.Code == "" {
					r.Code = c
				}
				v.store(ctx, key, r)
				return r, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Validate returns the rule only when it is active and inside its window.
func (v *Validator) Validate(ctx context.Context, code string) (*Rule, error) {
	r, err := v.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !r.IsValid(v.now()) {
		return nil, ErrNotActive
	}
	return r, nil
}

func (v *Validator) Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error) {
	r, err := v.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	amount, total := r.Apply(subtotal)
	return &Quote{Rule: r, Subtotal: subtotal, Discount: amount, Total: total}, nil
}

func (v *Validator) cached(ctx context.Context, key string) *Rule {
	if v.Cache == nil {
		return nil
	}
	b, ok, err := v.Cache.Get(ctx, key)
	if err != nil {
		v.Log.Warn("discount cache get", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var r Rule
	if err := json.Unmarshal(b, &r); err != nil {
		return nil
	}
	return &r
}

func (v *Validator) store(ctx context.Context, key string, r *Rule) {
	if v.Cache == nil {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := v.Cache.Set(ctx, key, b, redisx.TTLDiscount); err != nil {
		v.Log.Warn("discount cache set", "key", key, "error", err)
	}
}

func casings(code string) []string {
	out := []string{code}
	for _, c := range []string{strings.ToUpper(code), strings.ToLower(code)} {
		if c != out[len(out)-1] && c != out[0] {
			out = append(out, c)
		}
	}
	return out
}
