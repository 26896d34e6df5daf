package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/config"
)

// Authorizer decides whether a staff user holds every listed permission.
type Authorizer interface {
	Authorize(ctx context.Context, userID uint64, slugs ...string) error
}

// RequireStaff rejects requests whose identity is not a staff account.
// Customers are not part of the RBAC graph and their ids overlap with
// staff ids, so they must never reach a permission lookup.
func RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apierror.Unauthorized("Unauthorized")
			}
			if id.IsCustomer() {
				return apierror.Forbidden("Forbidden")
			}
			return next(c)
		}
	}
}

// RequirePermission lets the request through only when the identity holds
// all slugs.  It must run after JWTAuth.
func RequirePermission(a Authorizer, slugs ...string) echo.MiddlewareFunc {
	staff := RequireStaff()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return staff(func(c echo.Context) error {
			id, _ := IdentityFrom(c)
			if err := a.Authorize(c.Request().Context(), id.ID, slugs...); err != nil {
				return err
			}
			return next(c)
		})
	}
}

// RequireNonProduction hard-fails with 403 in production.
func RequireNonProduction(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.IsProduction() {
				return apierror.Forbidden("This endpoint is disabled in production")
			}
			return next(c)
		}
	}
}
