package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrIntentNotFound = errors.New("checkout intent not found")

type Repo struct{ DB *pgxpool.Pool }

const intentColumns = `id, user_id, user_email, payment_method, payment_ref, payment_id, payment_provider, amount,
	status, items, shipping_info, failure_reason, attempts, created_at, updated_at`

func scanIntent(row pgx.Row) (*Intent, error) {
	var in Intent
	var items, ship []byte
	err := row.Scan(&in.ID, &in.UserID, &in.UserEmail, &in.PaymentMethod, &in.PaymentRef, &in.PaymentID, &in.Provider, &in.Amount,
		&in.Status, &items, &ship, &in.FailureReason, &in.Attempts, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &in.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ship, &in.ShippingInfo); err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *Repo) FindIntent(ctx context.Context, userID, paymentRef string) (*Intent, error) {
	in, err := scanIntent(r.DB.QueryRow(ctx, `SELECT `+intentColumns+` FROM checkouts WHERE user_id=$1 AND payment_ref=$2`, userID, paymentRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return in, err
}

func (r *Repo) GetIntent(ctx context.Context, id string) (*Intent, error) {
	in, err := scanIntent(r.DB.QueryRow(ctx, `SELECT `+intentColumns+` FROM checkouts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	return in, err
}

// CreateIntent writes the intent before any stock or order is touched, and
// claims its processor transaction in the same transaction. A concurrent
// insert of the same (user_id, payment_ref) yields the stored row.
func (r *Repo) CreateIntent(ctx context.Context, in *Intent) (*Intent, bool, error) {
	items, err := json.Marshal(in.Items)
	if err != nil {
		return nil, false, err
	}
	ship, err := json.Marshal(in.ShippingInfo)
	if err != nil {
		return nil, false, err
	}
	created := false
	err = postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO checkouts(id, user_id, user_email, payment_method, payment_ref, payment_id, payment_provider, amount,
				status, items, shipping_info, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
			ON CONFLICT (user_id, payment_ref) DO NOTHING`,
			in.ID, in.UserID, in.UserEmail, in.PaymentMethod, in.PaymentRef, in.PaymentID, in.Provider, in.Amount,
			in.Status, string(items), string(ship), in.CreatedAt)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		created = true
		if ref := in.ClaimRef(); ref != "" {
			return payment.Claim(ctx, tx, ref, "checkout:"+in.ID)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return in, true, nil
	}
	stored, err := r.FindIntent(ctx, in.UserID, in.PaymentRef)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, ErrIntentNotFound
	}
	return stored, false, nil
}

func (r *Repo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.DB.Exec(ctx, `UPDATE checkouts SET status=$2, failure_reason=$3, updated_at=now() WHERE id=$1 AND status=$4`,
		id, IntentFailed, reason, IntentPending)
	return err
}

func (r *Repo) MarkRefundPending(ctx context.Context, id, reason string) error {
	_, err := r.DB.Exec(ctx, `UPDATE checkouts SET status=$2, failure_reason=$3, updated_at=now() WHERE id=$1 AND status=$4`,
		id, IntentRefundPending, reason, IntentPending)
	return err
}

func (r *Repo) MarkRefunded(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `UPDATE checkouts SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`,
		id, IntentRefunded, IntentRefundPending)
	return err
}

func (r *Repo) RecordAttempt(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `UPDATE checkouts SET attempts = attempts + 1, updated_at=now() WHERE id=$1 AND status=$2`, id, IntentPending)
	return err
}

func (r *Repo) PendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]Intent, error) {
	return r.byStatus(ctx, IntentPending, olderThan, limit)
}

func (r *Repo) RefundsDue(ctx context.Context, olderThan time.Time, limit int) ([]Intent, error) {
	return r.byStatus(ctx, IntentRefundPending, olderThan, limit)
}

func (r *Repo) byStatus(ctx context.Context, st IntentStatus, olderThan time.Time, limit int) ([]Intent, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+intentColumns+` FROM checkouts
		WHERE status=$1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`, st, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

func (r *Repo) OrdersForIntent(ctx context.Context, id string) ([]orders.Order, error) {
	return orders.ByCheckout(ctx, r.DB, id)
}

func (r *Repo) InTx(ctx context.Context, fn func(Tx) error) error {
	return postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) LockIntent(ctx context.Context, id string) (IntentStatus, error) {
	var st IntentStatus
	err := t.tx.QueryRow(ctx, `SELECT status FROM checkouts WHERE id=$1 FOR UPDATE`, id).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrIntentNotFound
	}
	return st, err
}

func (t pgTx) ReserveStock(ctx context.Context, productID string, qty int) error {
	return catalog.ReserveStock(ctx, t.tx, productID, qty)
}

func (t pgTx) InsertOrder(ctx context.Context, o *orders.Order) (bool, error) {
	return orders.InsertOrder(ctx, t.tx, o)
}

func (t pgTx) InsertPayment(ctx context.Context, p *orders.Payment) error {
	return orders.InsertPayment(ctx, t.tx, p)
}

func (t pgTx) AttachOrders(ctx context.Context, userID string, orderIDs []string, shipping account.Address) error {
	ship, err := json.Marshal(shipping)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE users SET
			order_ids = order_ids || ARRAY(SELECT x FROM unnest($2::text[]) x WHERE x <> ALL(users.order_ids)),
			last_shipping_info = $3::jsonb,
			updated_at = now()
		WHERE id=$1`, userID, orderIDs, string(ship))
	return err
}

// ClearCart leaves quantity added after the intent was written in the cart.
func (t pgTx) ClearCart(ctx context.Context, userID string, qty map[string]int) error {
	ids := make([]string, 0, len(qty))
	counts := make([]int32, 0, len(qty))
	for id, n := range qty {
		ids = append(ids, id)
		counts = append(counts, int32(n))
	}
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items c USING unnest($2::text[], $3::int[]) AS x(product_id, qty)
		WHERE c.user_id=$1 AND c.product_id = x.product_id AND c.quantity <= x.qty`, userID, ids, counts); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE cart_items c SET quantity = c.quantity - x.qty
		FROM unnest($2::text[], $3::int[]) AS x(product_id, qty)
		WHERE c.user_id=$1 AND c.product_id = x.product_id`, userID, ids, counts)
	return err
}

func (t pgTx) CompleteIntent(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE checkouts SET status=$2, failure_reason='', updated_at=$3 WHERE id=$1`, id, IntentCompleted, at)
	return err
}

func (t pgTx) OrdersForIntent(ctx context.Context, id string) ([]orders.Order, error) {
	return orders.ByCheckout(ctx, t.tx, id)
}
