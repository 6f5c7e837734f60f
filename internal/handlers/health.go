package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/playbot/internal/healthcheck"
)

type HealthHandler struct {
	logger   *slog.Logger
	checkers []healthcheck.Checker
}

func NewHealthHandler(log *slog.Logger, checkers ...healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:   log.With(slog.String("handler", "health")),
		checkers: checkers,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

// Health returns the full report, with 503 when any check failed.
func (h *HealthHandler) Health(c echo.Context) error {
	report := healthcheck.Evaluate(c.Request().Context(), h.checkers...)
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
		h.logger.Warn("health check failed", slog.String("status", report.Status))
	}
	return c.JSON(status, report)
}

func (h *HealthHandler) HealthHead(c echo.Context) error {
	if !healthcheck.Evaluate(c.Request().Context(), h.checkers...).Healthy() {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
