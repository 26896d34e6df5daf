package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and the state of the backing services.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Health is used by load balancers.  The database is required; Redis is
// optional and only reported.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := echo.Map{"status": "ok", "database": "ok", "redis": "disabled"}
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		}
	}
	if h.Redis != nil {
		body["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "unreachable"
		}
	}
	return c.JSON(status, body)
}
