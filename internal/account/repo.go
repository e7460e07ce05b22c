package account

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// Ensure upserts the user row from the session claims.
func (r *Repo) Ensure(ctx context.Context, s *session.Session) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
		WHERE users.email <> EXCLUDED.email OR users.name <> EXCLUDED.name`,
		s.UserID, s.Email, s.Name)
	return err
}

func (r *Repo) Addresses(ctx context.Context, userID string) ([]Address, error) {
	var raw []byte
	err := r.DB.QueryRow(ctx, `SELECT addresses FROM users WHERE id=$1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Address
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) AddAddress(ctx context.Context, userID string, a Address) (Address, error) {
	a.ID = uuid.NewString()
	b, err := json.Marshal([]Address{a})
	if err != nil {
		return Address{}, err
	}
	ct, err := r.DB.Exec(ctx, `UPDATE users SET addresses = addresses || $2::jsonb, updated_at = now() WHERE id=$1`, userID, string(b))
	if err != nil {
		return Address{}, err
	}
	if ct.RowsAffected() != 1 {
		return Address{}, pgx.ErrNoRows
	}
	return a, nil
}
