package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrAlreadyClaimed = errors.New("payment already used for another purchase")

// Claim records owner as the single consumer of a processor transaction.
// Claiming the same ref again for the same owner is a no-op. Must run in
// the transaction that materializes the purchase.
func Claim(ctx context.Context, tx pgx.Tx, ref, owner string) error {
	ct, err := tx.Exec(ctx, `
		INSERT INTO payment_claims(ref, owner) VALUES ($1,$2)
		ON CONFLICT (ref) DO NOTHING`, ref, owner)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var cur string
	if err := tx.QueryRow(ctx, `SELECT owner FROM payment_claims WHERE ref=$1`, ref).Scan(&cur); err != nil {
		return err
	}
	if cur != owner {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, ref)
	}
	return nil
}
