package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNotInCart       = errors.New("product not in cart")
)

type Store interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID, productID string, qty int) error
	Set(ctx context.Context, userID, productID string, qty int) (bool, error)
	Remove(ctx context.Context, userID, productID string) error
}

type Products interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
	ByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type Users interface {
	Ensure(ctx context.Context, s *session.Session) error
}

type Service struct {
	Store    Store
	Products Products
	Users    Users
}

func (s *Service) Add(ctx context.Context, sess *session.Session, productID string, qty int) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if _, err := s.Products.Get(ctx, productID); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	if err := s.Users.Ensure(ctx, sess); err != nil {
		return err
	}
	return s.Store.Add(ctx, sess.UserID, productID, qty)
}

// SetQuantity with qty == 0 removes the line.
func (s *Service) SetQuantity(ctx context.Context, sess *session.Session, productID string, qty int) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	switch {
	case qty < 0:
		return ErrInvalidQuantity
	case qty == 0:
		return s.Store.Remove(ctx, sess.UserID, productID)
	}
	ok, err := s.Store.Set(ctx, sess.UserID, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInCart
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, sess *session.Session, productID string) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	return s.Store.Remove(ctx, sess.UserID, productID)
}

func (s *Service) View(ctx context.Context, sess *session.Session) (View, error) {
	if sess == nil {
		return View{}, ErrUnauthenticated
	}
	items, err := s.Store.Items(ctx, sess.UserID)
	if err != nil {
		return View{}, err
	}
	products, err := s.Products.ByIDs(ctx, ProductIDs(items))
	if err != nil {
		return View{}, err
	}
	return Resolve(items, products), nil
}
