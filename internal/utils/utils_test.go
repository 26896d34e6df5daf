package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.True(t, h.Compare(hash, "s3cret!"))
	assert.False(t, h.Compare(hash, "wrong"))
	assert.False(t, h.Compare("not-a-hash", "s3cret!"))
}

func TestPasswordHasher_RejectsEmpty(t *testing.T) {
	_, err := NewPasswordHasher(4).Hash("")
	assert.Error(t, err)
}

func TestPasswordHasher_RejectsOverlongInput(t *testing.T) {
	h := NewPasswordHasher(4)
	_, err := h.Hash(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, 10, NewPasswordHasher(99).cost)
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("")
	assert.Error(t, err)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)

	roleID := uint64(2)
	slug := "admin"
	tok, err := iss.Issue(Claims{ID: 5, Email: "a@trustcart.com", RoleID: &roleID, RoleSlug: &slug, Type: TypeStaff})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), tok.Exp, time.Minute)

	c, err := iss.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.ID)
	assert.Equal(t, "5", c.Subject)
	assert.Equal(t, "admin", *c.RoleSlug)
	assert.False(t, c.IsCustomer())
}

func TestTokenIssuer_ExpiredToken(t *testing.T) {
	iss, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)
	base := time.Now()
	iss.now = func() time.Time { return base }
	tok, err := iss.Issue(Claims{ID: 5, Type: TypeStaff})
	require.NoError(t, err)

	iss.now = func() time.Time { return base.Add(TokenTTL + time.Second) }
	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a")
	b, _ := NewTokenIssuer("secret-b")
	tok, err := a.Issue(Claims{ID: 5, Type: TypeStaff})
	require.NoError(t, err)

	_, err = b.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	iss, _ := NewTokenIssuer("test-secret")
	c := Claims{ID: 5, Type: TypeStaff}
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = iss.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_IsCustomer(t *testing.T) {
	slug := "customer-account"
	assert.True(t, (&Claims{Type: TypeCustomer}).IsCustomer())
	assert.False(t, (&Claims{Type: TypeStaff, RoleSlug: &slug}).IsCustomer())
	assert.True(t, (&Claims{Type: TypeStaff, RoleSlug: &slug}).HasCustomerRole())
	assert.False(t, (&Claims{Type: TypeStaff}).HasCustomerRole())
}
