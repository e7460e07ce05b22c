package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Sign(&Session{UserID: "u1", Email: "a@b.c", Name: "Ana", Role: RoleOperator}, time.Hour)
	require.NoError(t, err)

	s, err := v.Verify("Bearer " + tok)

	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "a@b.c", s.Email)
	assert.True(t, s.IsOperator())
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	other := NewVerifier("other")
	forged, err := other.Sign(&Session{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	expired, err := v.Sign(&Session{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Sign(&Session{Email: "x@y.z"}, time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "abc.def.ghi",
		"forged":     forged,
		"expired":    expired,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	ctx := WithSession(context.Background(), &Session{UserID: "u9"})

	assert.Equal(t, "u9", FromContext(ctx).UserID)
	assert.False(t, FromContext(ctx).IsOperator())
}
