package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `o.id, o.checkout_id, o.user_id, o.product_id, o.product_name, o.vendor_id, o.quantity,
	o.price, o.total, o.status, o.payment_method, o.payment_id, o.delivery_status, o.shipping_info,
	o.return_reason, o.return_requested_at, o.created_at, o.updated_at, u.email, u.name`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var ship []byte
	err := row.Scan(&o.ID, &o.CheckoutID, &o.UserID, &o.ProductID, &o.ProductName, &o.VendorID, &o.Quantity,
		&o.Price, &o.Total, &o.Status, &o.PaymentMethod, &o.PaymentID, &o.DeliveryStatus, &ship,
		&o.ReturnReason, &o.ReturnRequestedAt, &o.CreatedAt, &o.UpdatedAt, &o.UserEmail, &o.UserName)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ship, &o.ShippingInfo); err != nil {
		return nil, err
	}
	return &o, nil
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o JOIN users u ON u.id = o.user_id WHERE o.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.user_id=$1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) ListByCheckout(ctx context.Context, checkoutID string) ([]Order, error) {
	return ByCheckout(ctx, r.DB, checkoutID)
}

func ByCheckout(ctx context.Context, q Querier, checkoutID string) ([]Order, error) {
	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.checkout_id=$1 ORDER BY o.created_at, o.product_id`, checkoutID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Transition applies t under a row lock. The stored delivery status must
// still equal t.From, otherwise ErrTransitionNotAllowed.
func (r *Repo) Transition(ctx context.Context, id string, t Transition) (*Order, error) {
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		var cur DeliveryStatus
		var productID string
		var qty int
		err := tx.QueryRow(ctx, `SELECT delivery_status, product_id, quantity FROM orders WHERE id=$1 FOR UPDATE`, id).
			Scan(&cur, &productID, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur != t.From || !CanTransition(t.From, t.To) {
			return ErrTransitionNotAllowed
		}

		switch {
		case t.To == DeliveryReturnInitiated:
			_, err = tx.Exec(ctx, `UPDATE orders SET delivery_status=$2, return_reason=$3, return_requested_at=$4, updated_at=$4 WHERE id=$1`,
				id, t.To, t.ReturnReason, t.At)
		case t.ClearReturn:
			_, err = tx.Exec(ctx, `UPDATE orders SET delivery_status=$2, return_reason='', return_requested_at=NULL, updated_at=$3 WHERE id=$1`,
				id, t.To, t.At)
		default:
			_, err = tx.Exec(ctx, `UPDATE orders SET delivery_status=$2, updated_at=$3 WHERE id=$1`, id, t.To, t.At)
		}
		if err != nil {
			return err
		}
		if t.ReleaseStock {
			return catalog.ReleaseStock(ctx, tx, productID, qty)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// InsertOrder is idempotent per (checkout_id, product_id); inserted=false
// means the row already existed and o.ID was replaced with the stored id.
func InsertOrder(ctx context.Context, tx pgx.Tx, o *Order) (inserted bool, err error) {
	ship, err := json.Marshal(o.ShippingInfo)
	if err != nil {
		return false, err
	}
	ct, err := tx.Exec(ctx, `
		INSERT INTO orders(id, checkout_id, user_id, product_id, product_name, vendor_id, quantity, price, total,
		                   status, payment_method, payment_id, delivery_status, shipping_info, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
		ON CONFLICT (checkout_id, product_id) DO NOTHING`,
		o.ID, o.CheckoutID, o.UserID, o.ProductID, o.ProductName, o.VendorID, o.Quantity, o.Price, o.Total,
		o.Status, o.PaymentMethod, o.PaymentID, o.DeliveryStatus, string(ship), o.CreatedAt)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	return false, tx.QueryRow(ctx, `SELECT id FROM orders WHERE checkout_id=$1 AND product_id=$2`, o.CheckoutID, o.ProductID).Scan(&o.ID)
}

func InsertPayment(ctx context.Context, tx pgx.Tx, p *Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments(id, order_id, user_id, vendor_id, amount, payment_method, payment_id, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (order_id) DO NOTHING`,
		p.ID, p.OrderID, p.UserID, p.VendorID, p.Amount, p.PaymentMethod, p.PaymentID, p.Status, p.CreatedAt)
	return err
}

type Transition struct {
	From, To     DeliveryStatus
	ReturnReason string
	ClearReturn  bool
	ReleaseStock bool
	At           time.Time
}
