package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const columns = `id, user_id, target_id, amount, discount_code, status, payment_status, payment_intent_id,
	slot_start, created_at, updated_at`

func table(k Kind) (string, error) {
	t, ok := tables[k]
	if !ok {
		return "", ErrUnknownKind
	}
	return t, nil
}

func scan(k Kind, row pgx.Row) (*Registration, error) {
	r := Registration{Kind: k}
	err := row.Scan(&r.ID, &r.UserID, &r.TargetID, &r.Amount, &r.DiscountCode, &r.Status, &r.PaymentStatus,
		&r.PaymentIntentID, &r.SlotStart, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Repo) Create(ctx context.Context, r *Registration) error {
	t, err := table(r.Kind)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s(id, user_id, target_id, amount, discount_code, status, payment_status, slot_start, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`, t),
		r.ID, r.UserID, r.TargetID, r.Amount, r.DiscountCode, r.Status, r.PaymentStatus, r.SlotStart, r.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

// Price reads the list price of an active program, event or class.
func (s *Repo) Price(ctx context.Context, k Kind, targetID string) (decimal.Decimal, error) {
	t, ok := offerings[k]
	if !ok {
		return decimal.Zero, ErrUnknownKind
	}
	var price decimal.Decimal
	err := s.DB.QueryRow(ctx, fmt.Sprintf(`SELECT price FROM %s WHERE id=$1 AND active`, t), targetID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrTargetNotFound
	}
	return price, err
}

func (s *Repo) Get(ctx context.Context, k Kind, id string) (*Registration, error) {
	t, err := table(k)
	if err != nil {
		return nil, err
	}
	return scan(k, s.DB.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, columns, t), id))
}

// MarkPaid flips an unpaid, uncancelled registration to paid in one
// conditional UPDATE and claims the processor transaction in the same
// transaction. changed=false with a nil error means ref was already
// recorded by an earlier call.
func (s *Repo) MarkPaid(ctx context.Context, k Kind, id, ref, claim string, at time.Time) (*Registration, bool, error) {
	t, err := table(k)
	if err != nil {
		return nil, false, err
	}
	var r *Registration
	err = postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		r, err = scan(k, tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE %s SET status=$2, payment_status=$3, payment_intent_id=$4, updated_at=$5
			WHERE id=$1 AND payment_status <> $3 AND status <> $6
			RETURNING %s`, t, columns),
			id, PaidStatus(k), StatusCompleted, ref, at, StatusCancelled))
		if err != nil || claim == "" {
			return err
		}
		return payment.Claim(ctx, tx, claim, r.owner())
	})
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	cur, err := s.Get(ctx, k, id)
	if err != nil {
		return nil, false, err
	}
	return cur, false, paidConflict(cur, ref)
}

// paidConflict explains why a registration could not be marked paid with ref.
func paidConflict(cur *Registration, ref string) error {
	switch {
	case cur.Paid() && cur.PaymentIntentID == ref:
		return nil
	case cur.Paid():
		return ErrAlreadyPaid
	}
	return ErrCancelled
}

func (s *Repo) Cancel(ctx context.Context, k Kind, id string, at time.Time) (*Registration, error) {
	t, err := table(k)
	if err != nil {
		return nil, err
	}
	r, err := scan(k, s.DB.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s SET status=$2, updated_at=$3
		WHERE id=$1 AND status=$4 AND payment_status=$4
		RETURNING %s`, t, columns), id, StatusCancelled, at, StatusPending))
	if !errors.Is(err, ErrNotFound) {
		return r, err
	}
	if _, err := s.Get(ctx, k, id); err != nil {
		return nil, err
	}
	return nil, ErrNotPending
}
