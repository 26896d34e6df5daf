package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/middleware"
	"github.com/trustcart/backoffice-auth/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

// loginReq accepts the identifier under any of its three historical names.
type loginReq struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
}

func (r loginReq) identifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Email != "":
		return r.Email
	}
	return r.Phone
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Phone    string `json:"phone"`
}

type validateReq struct {
	Token string `json:"token"`
}

func requestMeta(c echo.Context) service.RequestMeta {
	return service.RequestMeta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// Login: POST /auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid body")
	}
	res, err := h.Auth.Login(c.Request().Context(), req.identifier(), req.Password, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Register: POST /auth/register.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid body")
	}
	res, err := h.Auth.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		LastName: req.LastName,
		Phone:    req.Phone,
	}, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Validate always answers 200; an unreadable body is simply an invalid token.
func (h *AuthHandler) Validate(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, service.ValidateResult{Valid: false})
	}
	return c.JSON(http.StatusOK, h.Auth.ValidateToken(req.Token))
}

// Me: GET /auth/me, behind JWTAuth.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return apierror.Unauthorized("Unauthorized")
	}
	p, err := h.Auth.Profile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
