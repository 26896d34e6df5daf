package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/trustcart/backoffice-auth/internal/apierror"
)

// ErrorHandler writes every handler error as {"message": ...}.  Only typed
// API errors and echo's own errors expose their message; anything else is
// logged and reported generically.
func ErrorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := apierror.HTTPStatus(err)
		msg := http.StatusText(status)

		var (
			ae *apierror.Error
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &ae):
			msg = ae.Message
			if ae.Err != nil {
				log.WithError(ae.Err).WithField("path", c.Path()).Warn(ae.Message)
			}
		case errors.As(err, &he):
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		default:
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Error("request failed")
			if status == http.StatusInternalServerError {
				msg = "internal server error"
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"message": msg})
		}
		if err != nil {
			log.WithError(err).Warn("write error response")
		}
	}
}
