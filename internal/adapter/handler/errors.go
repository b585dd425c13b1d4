package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
)

// statusFor maps the domain failure taxonomy onto HTTP statuses. LockTimeout
// is a 409: the operation can be retried as-is by the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbiddenOperation):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUncertainAccount), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrLockTimeout):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("unhandled error", "error", err, "path", c.Path())
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
