package account

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-storefront-checkout/internal/session"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Store interface {
	Ensure(ctx context.Context, s *session.Session) error
	Addresses(ctx context.Context, userID string) ([]Address, error)
	AddAddress(ctx context.Context, userID string, a Address) (Address, error)
}

type Service struct {
	Store Store
}

func (s *Service) List(ctx context.Context, sess *session.Session) ([]Address, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return s.Store.Addresses(ctx, sess.UserID)
}

func (s *Service) Add(ctx context.Context, sess *session.Session, a Address) (Address, error) {
	if sess == nil {
		return Address{}, ErrUnauthenticated
	}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	if err := s.Store.Ensure(ctx, sess); err != nil {
		return Address{}, err
	}
	return s.Store.AddAddress(ctx, sess.UserID, a)
}

// Resolve picks a saved address by id.
func (s *Service) Resolve(ctx context.Context, sess *session.Session, id string) (Address, error) {
	if sess == nil {
		return Address{}, ErrUnauthenticated
	}
	list, err := s.Store.Addresses(ctx, sess.UserID)
	if err != nil {
		return Address{}, err
	}
	for _, a := range list {
		if a.ID == id {
			return a, nil
		}
	}
	return Address{}, ErrAddressNotFound
}
