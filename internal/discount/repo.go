package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Repo struct{ DB *pgxpool.Pool }

var columns = map[Field]string{
	FieldCode:       "code",
	FieldPromoCode:  "promo_code",
	FieldCouponCode: "coupon_code",
}

func (r *Repo) FindBy(ctx context.Context, field Field, code string) (*Rule, error) {
	col, ok := columns[field]
	if !ok {
		return nil, fmt.Errorf("unknown discount field %q", field)
	}
	var rule Rule
	var c *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(code, promo_code, coupon_code), status, start_date, end_date, discount_type, discount_value, max_discount
		FROM discounts WHERE `+col+` = $1
		ORDER BY created_at DESC LIMIT 1`, code).
		Scan(&rule.ID, &c, &rule.Status, &rule.StartDate, &rule.EndDate, &rule.Type, &rule.Value, &rule.MaxDiscount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c != nil {
		rule.Code = *c
	}
	return &rule, nil
}

// NormalizeLegacy copies promo_code/coupon_code into code for old rows.
// Safe to run on every start.
func (r *Repo) NormalizeLegacy(ctx context.Context) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE discounts SET code = COALESCE(NULLIF(promo_code, ''), NULLIF(coupon_code, ''))
		WHERE (code IS NULL OR code = '')
		  AND (COALESCE(promo_code, '') <> '' OR COALESCE(coupon_code, '') <> '')`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type RedisCache struct {
	RDB redis.Cmdable
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, val, ttl).Err()
}
