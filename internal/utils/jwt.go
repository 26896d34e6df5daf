package utils // package utils provides helpers for token signing and password hashing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of every access token.  There is no refresh
// flow; clients log in again once a token expires.
const TokenTTL = 24 * time.Hour

// Principal kinds carried in the "type" claim.
const (
	TypeStaff    = "staff"
	TypeCustomer = "customer"
)

// ErrInvalidToken is the single error Verify returns.  Callers cannot tell a
// bad signature from an expired or malformed token.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload of an access token.  RoleSlug is nil for staff
// accounts without a role.  RegisteredClaims carries sub, iat and exp.
type Claims struct {
	ID       uint64  `json:"id"`
	Email    string  `json:"email,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	RoleID   *uint64 `json:"roleId,omitempty"`
	RoleSlug *string `json:"roleSlug"`
	Type     string  `json:"type"`
	jwt.RegisteredClaims
}

// IsCustomer reports whether the token was issued to a storefront customer.
// Only the token type decides; staff accounts may carry the customer-account
// role slug.
func (c *Claims) IsCustomer() bool {
	return c.Type == TypeCustomer
}

// HasCustomerRole reports whether the token carries the customer-account
// role slug, whatever its type.
func (c *Claims) HasCustomerRole() bool {
	return c.RoleSlug != nil && *c.RoleSlug == "customer-account"
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// TokenIssuer signs and verifies HS256 access tokens with one secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer refuses to build an issuer without a secret so that no
// token can ever be signed with a well-known key.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: TokenTTL, now: time.Now}, nil
}

// Issue signs claims.  Subject, IssuedAt and ExpiresAt are overwritten.
func (t *TokenIssuer) Issue(c Claims) (AccessToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	c.Subject = strconv.FormatUint(c.ID, 10)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks the signature, algorithm and expiry of raw and returns its
// claims.  Every failure yields ErrInvalidToken.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !tok.Valid || claims.ID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
