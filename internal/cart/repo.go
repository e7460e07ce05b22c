package cart

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, quantity, added_at FROM cart_items
		WHERE user_id=$1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Add merges with an existing line.
func (r *Repo) Add(ctx context.Context, userID, productID string, qty int) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, productID, qty)
	return err
}

func (r *Repo) Set(ctx context.Context, userID, productID string, qty int) (bool, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity=$3 WHERE user_id=$1 AND product_id=$2`, userID, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Remove(ctx context.Context, userID, productID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2`, userID, productID)
	return err
}
