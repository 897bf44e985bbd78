package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness plus the state of the store and Redis.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Health answers 200 while the database is reachable.  Redis is reported
// but optional: without it the change channel and limiter degrade.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	out := echo.Map{"status": "ok", "db": "ok", "redis": "disabled"}
	status := http.StatusOK
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			out["status"], out["db"] = "degraded", "down"
			status = http.StatusServiceUnavailable
		}
	}
	if h.Redis != nil {
		out["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = "down"
		}
	}
	return c.JSON(status, out)
}
