package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type lookupCall struct {
	field Field
	code  string
}

type fakeStore struct {
	rows  map[lookupCall]*Rule
	calls []lookupCall
}

func (f *fakeStore) FindBy(_ context.Context, field Field, code string) (*Rule, error) {
	c := lookupCall{field, code}
	f.calls = append(f.calls, c)
	return f.rows[c], nil
}

type memCache struct{ m map[string][]byte }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.m[key] = val
	return nil
}

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func active(code string) *Rule {
	return &Rule{ID: "r-" + code, Code: code, Status: StatusActive, Type: TypePercentage, Value: d("10")}
}

func TestLookup_Order(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rows  map[lookupCall]*Rule
		want  []lookupCall
	}{
		{
			name:  "exact match",
			input: "Save10",
			rows:  map[lookupCall]*Rule{{FieldCode, "Save10"}: active("Save10")},
			want:  []lookupCall{{FieldCode, "Save10"}},
		},
		{
			name:  "upper case fallback",
			input: "save10",
			rows:  map[lookupCall]*Rule{{FieldCode, "SAVE10"}: active("SAVE10")},
			want:  []lookupCall{{FieldCode, "save10"}, {FieldCode, "SAVE10"}},
		},
		{
			name:  "lower case fallback",
			input: "Save10",
			rows:  map[lookupCall]*Rule{{FieldCode, "save10"}: active("save10")},
			want:  []lookupCall{{FieldCode, "Save10"}, {FieldCode, "SAVE10"}, {FieldCode, "save10"}},
		},
		{
			name:  "legacy coupon field",
			input: "OLD",
			rows:  map[lookupCall]*Rule{{FieldCouponCode, "old"}: {ID: "legacy", Status: StatusActive}},
			want: []lookupCall{
				{FieldCode, "OLD"}, {FieldCode, "old"},
				{FieldPromoCode, "OLD"}, {FieldPromoCode, "old"},
				{FieldCouponCode, "OLD"}, {FieldCouponCode, "old"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{rows: tt.rows}
			v := &Validator{Store: store, Log: logger.NewNop()}

			r, err := v.Lookup(context.Background(), tt.input)

			require.NoError(t, err)
			assert.NotNil(t, r)
			assert.NotEmpty(t, r.Code)
			assert.Equal(t, tt.want, store.calls)
		})
	}
}

func TestLookup_NotFoundAndEmpty(t *testing.T) {
	v := &Validator{Store: &fakeStore{}, Log: logger.NewNop()}

	_, err := v.Lookup(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = v.Lookup(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyCode))
}

func TestLookup_UsesCache(t *testing.T) {
	store := &fakeStore{rows: map[lookupCall]*Rule{{FieldCode, "X"}: active("X")}}
	v := &Validator{Store: store, Cache: &memCache{m: map[string][]byte{}}, Log: logger.NewNop()}

	_, err := v.Lookup(context.Background(), "X")
	require.NoError(t, err)
	r, err := v.Lookup(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, "r-X", r.ID)
	assert.Len(t, store.calls, 1)
}

func TestRule_IsValidWindow(t *testing.T) {
	at := func(d time.Duration) *time.Time { x := now.Add(d); return &x }
	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"open ended", Rule{Status: StatusActive}, true},
		{"inactive", Rule{Status: "inactive"}, false},
		{"starts within buffer", Rule{Status: StatusActive, StartDate: at(23 * time.Hour)}, true},
		{"starts exactly at buffer", Rule{Status: StatusActive, StartDate: at(24 * time.Hour)}, true},
		{"starts after buffer", Rule{Status: StatusActive, StartDate: at(25 * time.Hour)}, false},
		{"ended within buffer", Rule{Status: StatusActive, EndDate: at(-23 * time.Hour)}, true},
		{"ended exactly at buffer", Rule{Status: StatusActive, EndDate: at(-24 * time.Hour)}, true},
		{"ended before buffer", Rule{Status: StatusActive, EndDate: at(-25 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.IsValid(now))
		})
	}
}

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		name         string
		rule         Rule
		subtotal     string
		wantDiscount string
		wantTotal    string
	}{
		{"percentage", Rule{Type: TypePercentage, Value: d("10")}, "250", "25", "225"},
		{"percentage capped", Rule{Type: TypePercentage, Value: d("50"), MaxDiscount: decimal.NewNullDecimal(d("100"))}, "1000", "100", "900"},
		{"fixed", Rule{Type: TypeFixed, Value: d("40")}, "100", "40", "60"},
		{"fixed above subtotal", Rule{Type: TypeFixed, Value: d("150")}, "100", "100", "0"},
		{"negative value", Rule{Type: TypeFixed, Value: d("-5")}, "100", "0", "100"},
		{"over 100 percent", Rule{Type: TypePercentage, Value: d("120")}, "80", "80", "0"},
		{"rounding", Rule{Type: TypePercentage, Value: d("15")}, "9.99", "1.5", "8.49"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, total := tt.rule.Apply(d(tt.subtotal))

			assert.True(t, d(tt.wantDiscount).Equal(amount), "discount %s", amount)
			assert.True(t, d(tt.wantTotal).Equal(total), "total %s", total)
			assert.False(t, total.IsNegative())
		})
	}
}

func TestValidator_Quote(t *testing.T) {
	expired := active("OLD10")
	end := now.Add(-72 * time.Hour)
	expired.EndDate = &end
	store := &fakeStore{rows: map[lookupCall]*Rule{
		{FieldCode, "SAVE10"}: active("SAVE10"),
		{FieldCode, "OLD10"}:  expired,
	}}
	v := &Validator{Store: store, Log: logger.NewNop(), Now: func() time.Time { return now }}

	q, err := v.Quote(context.Background(), "SAVE10", d("500"))
	require.NoError(t, err)
	assert.True(t, d("50").Equal(q.Discount))
	assert.True(t, d("450").Equal(q.Total))

	_, err = v.Quote(context.Background(), "OLD10", d("500"))
	assert.True(t, errors.Is(err, ErrNotActive))
}
