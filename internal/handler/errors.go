package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
)

// writeError maps the engine's error taxonomy to HTTP responses. Every
// handler funnels failures through here so the wire surface stays
// uniform: one status and one stable reason code per failure class.
func writeError(c echo.Context, err error) error {
	var decodeErr *apperr.DecodeFailure
	if errors.As(err, &decodeErr) {
		status := http.StatusBadRequest
		if decodeErr.Reason == apperr.DecodeTimeout {
			status = http.StatusRequestTimeout
		}
		if decodeErr.Reason == apperr.DecodeNoMatch {
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, echo.Map{"error": string(decodeErr.Reason)})
	}

	var limited *apperr.RateLimited
	if errors.As(err, &limited) {
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 0 {
			secs = 0
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "too_many_requests",
			"retry_after": secs,
		})
	}

	var remote *apperr.RemoteUnavailable
	if errors.As(err, &remote) {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "remote_unavailable"})
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	case errors.Is(err, apperr.ErrSessionExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session_expired"})
	case errors.Is(err, apperr.ErrCsrfMismatch):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "csrf_mismatch"})
	case errors.Is(err, apperr.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, apperr.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition"})
	case errors.Is(err, apperr.ErrRemoteConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "remote_conflict"})
	case errors.Is(err, apperr.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
}
