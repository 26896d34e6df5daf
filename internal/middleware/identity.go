package middleware

// identity.go holds the request-scoped identity helpers shared by the
// gates, the rate limiter and the handlers.

import (
	"github.com/labstack/echo/v4"

	"github.com/trustcart/backoffice-auth/internal/utils"
)

const identityKey = "identity"

// IdentityFrom returns the claims attached by JWTAuth.
func IdentityFrom(c echo.Context) (*utils.Claims, bool) {
	claims, ok := c.Get(identityKey).(*utils.Claims)
	return claims, ok && claims != nil
}

// currentUserID is the user id as a string, or "anon" before JWTAuth ran.
func currentUserID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return "anon"
}
