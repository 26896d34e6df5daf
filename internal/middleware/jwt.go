package middleware // middleware provides the authentication and authorization gates

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*utils.Claims, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and attaches its claims to the request context.  No database is
// consulted.  Every failure is the same 401 so clients cannot tell an
// expired token from a forged one.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, ok := strings.Cut(auth, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return apierror.Unauthorized("Unauthorized")
			}
			claims, err := v.Verify(strings.TrimSpace(raw))
			if err != nil {
				return apierror.Unauthorized("Unauthorized")
			}
			setIdentity(c, claims)
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, claims *utils.Claims) {
	c.Set(identityKey, claims)
	c.Set("user_id", strconv.FormatUint(claims.ID, 10))
	if claims.RoleSlug != nil {
		c.Set("role", *claims.RoleSlug)
	}
}
