package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/security"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

const actorKey = "actor"

// Protected verifies the bearer token, loads the principal and stores it in
// the request locals. Every handler behind it gets the actor via CurrentActor
// and threads it explicitly into the services.
func Protected(tokens *security.TokenIssuer, users *service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization header format"})
		}

		userID, err := tokens.Verify(parts[1])
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		user, err := users.GetByID(c.Context(), userID)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unknown principal"})
		}

		c.Locals(actorKey, user)
		return c.Next()
	}
}

// CurrentActor returns the principal resolved by Protected.
func CurrentActor(c *fiber.Ctx) (*domain.User, error) {
	user, ok := c.Locals(actorKey).(*domain.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("%w: no principal attached to the call", domain.ErrUnauthenticated)
	}
	return user, nil
}
