package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, name, price, stock_qty, ordered_qty, vendor_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.StockQty, &p.OrderedQty, &p.VendorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// ByIDs returns the products that exist; missing ids are simply absent.
func (r *Repo) ByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReserveStock: lock row (FOR UPDATE) -> conditional increment ordered_qty.
// Returns ErrProductGone when the row vanished and *OutOfStockError when
// ordered_qty + qty would exceed stock_qty.
func ReserveStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	var stock, ordered int
	err := tx.QueryRow(ctx, `SELECT stock_qty, ordered_qty FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock, &ordered)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductGone
	}
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE products SET ordered_qty = ordered_qty + $2, updated_at = now()
		WHERE id = $1 AND ordered_qty + $2 <= stock_qty`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &OutOfStockError{ProductID: productID, Requested: qty, Available: max(stock-ordered, 0)}
	}
	return nil
}

// ReleaseStock mengembalikan unit yang sudah di-reserve (cancel / refund).
func ReleaseStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	_, err := tx.Exec(ctx, `
		UPDATE products SET ordered_qty = GREATEST(ordered_qty - $2, 0), updated_at = now()
		WHERE id = $1`, productID, qty)
	return err
}
