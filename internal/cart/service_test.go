package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct{ mock.Mock }

func (m *MockStore) Items(ctx context.Context, userID string) ([]Item, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Item), args.Error(1)
}
func (m *MockStore) Add(ctx context.Context, userID, productID string, qty int) error {
	return m.Called(ctx, userID, productID, qty).Error(0)
}
func (m *MockStore) Set(ctx context.Context, userID, productID string, qty int) (bool, error) {
	args := m.Called(ctx, userID, productID, qty)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) Remove(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

type MockProducts struct{ mock.Mock }

func (m *MockProducts) Get(ctx context.Context, id string) (catalog.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(catalog.Product), args.Error(1)
}
func (m *MockProducts) ByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]catalog.Product), args.Error(1)
}

type MockUsers struct{ mock.Mock }

func (m *MockUsers) Ensure(ctx context.Context, s *session.Session) error {
	return m.Called(ctx, s).Error(0)
}

var sess = &session.Session{UserID: "u1"}

func TestResolve_DropsMissingProducts(t *testing.T) {
	items := []Item{{ProductID: "p1", Quantity: 2}, {ProductID: "gone", Quantity: 1}, {ProductID: "p2", Quantity: 1}}
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: decimal.RequireFromString("10.50")},
		"p2": {ID: "p2", Price: decimal.RequireFromString("4")},
	}

	v := Resolve(items, products)

	assert.Len(t, v.Lines, 2)
	assert.Equal(t, []string{"gone"}, v.Missing)
	assert.True(t, decimal.RequireFromString("25").Equal(v.Subtotal), v.Subtotal.String())
}

func TestService_Add(t *testing.T) {
	store, products, users := new(MockStore), new(MockProducts), new(MockUsers)
	svc := &Service{Store: store, Products: products, Users: users}
	products.On("Get", mock.Anything, "p1").Return(catalog.Product{ID: "p1"}, nil)
	users.On("Ensure", mock.Anything, sess).Return(nil)
	store.On("Add", mock.Anything, "u1", "p1", 2).Return(nil)

	require.NoError(t, svc.Add(context.Background(), sess, "p1", 2))
	store.AssertExpectations(t)
}

func TestService_AddValidation(t *testing.T) {
	store, products, users := new(MockStore), new(MockProducts), new(MockUsers)
	svc := &Service{Store: store, Products: products, Users: users}
	products.On("Get", mock.Anything, "nope").Return(catalog.Product{}, catalog.ErrNotFound)

	assert.True(t, errors.Is(svc.Add(context.Background(), nil, "p1", 1), ErrUnauthenticated))
	assert.True(t, errors.Is(svc.Add(context.Background(), sess, "p1", 0), ErrInvalidQuantity))
	assert.True(t, errors.Is(svc.Add(context.Background(), sess, "nope", 1), catalog.ErrNotFound))
	store.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SetQuantity(t *testing.T) {
	store := new(MockStore)
	svc := &Service{Store: store}
	store.On("Remove", mock.Anything, "u1", "p1").Return(nil)
	store.On("Set", mock.Anything, "u1", "p2", 3).Return(true, nil)
	store.On("Set", mock.Anything, "u1", "p3", 3).Return(false, nil)

	assert.NoError(t, svc.SetQuantity(context.Background(), sess, "p1", 0))
	assert.NoError(t, svc.SetQuantity(context.Background(), sess, "p2", 3))
	assert.True(t, errors.Is(svc.SetQuantity(context.Background(), sess, "p3", 3), ErrNotInCart))
	assert.True(t, errors.Is(svc.SetQuantity(context.Background(), sess, "p3", -1), ErrInvalidQuantity))
	store.AssertExpectations(t)
}

func TestService_View(t *testing.T) {
	store, products := new(MockStore), new(MockProducts)
	svc := &Service{Store: store, Products: products}
	store.On("Items", mock.Anything, "u1").Return([]Item{{ProductID: "p1", Quantity: 1}}, nil)
	products.On("ByIDs", mock.Anything, []string{"p1"}).Return(map[string]catalog.Product{}, nil)

	v, err := svc.View(context.Background(), sess)

	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.Equal(t, []string{"p1"}, v.Missing)
	assert.True(t, v.Subtotal.IsZero())
}
