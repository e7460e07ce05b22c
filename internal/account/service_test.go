package account

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ensure(ctx context.Context, s *session.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStore) Addresses(ctx context.Context, userID string) ([]Address, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Address), args.Error(1)
}

func (m *MockStore) AddAddress(ctx context.Context, userID string, a Address) (Address, error) {
	args := m.Called(ctx, userID, a)
	return args.Get(0).(Address), args.Error(1)
}

func validAddress() Address {
	return Address{FullName: "Ana", Phone: "999", Line1: "1 Main St", City: "Pune", PostalCode: "411001", Country: "IN"}
}

func TestAddress_Validate(t *testing.T) {
	assert.NoError(t, validAddress().Validate())

	err := Address{FullName: "Ana"}.Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.Contains(t, err.Error(), "city, country, line1, phone, postal_code")
}

func TestService_Add(t *testing.T) {
	// Arrange
	store := new(MockStore)
	svc := &Service{Store: store}
	sess := &session.Session{UserID: "u1", Email: "a@b.c"}
	saved := validAddress()
	saved.ID = "addr-1"
	store.On("Ensure", mock.Anything, sess).Return(nil)
	store.On("AddAddress", mock.Anything, "u1", validAddress()).Return(saved, nil)

	// Act
	got, err := svc.Add(context.Background(), sess, validAddress())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "addr-1", got.ID)
	store.AssertExpectations(t)
}

func TestService_AddRejectsInvalidBeforeWriting(t *testing.T) {
	store := new(MockStore)
	svc := &Service{Store: store}

	_, err := svc.Add(context.Background(), &session.Session{UserID: "u1"}, Address{})

	assert.True(t, errors.Is(err, ErrInvalidAddress))
	store.AssertNotCalled(t, "Ensure", mock.Anything, mock.Anything)
}

func TestService_Resolve(t *testing.T) {
	store := new(MockStore)
	svc := &Service{Store: store}
	a := validAddress()
	a.ID = "addr-1"
	store.On("Addresses", mock.Anything, "u1").Return([]Address{a}, nil)
	sess := &session.Session{UserID: "u1"}

	got, err := svc.Resolve(context.Background(), sess, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, "Pune", got.City)

	_, err = svc.Resolve(context.Background(), sess, "nope")
	assert.True(t, errors.Is(err, ErrAddressNotFound))

	_, err = svc.Resolve(context.Background(), nil, "addr-1")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}
