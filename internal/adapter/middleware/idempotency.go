package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Idempotency caches responses by Idempotency-Key. The funding engine is
// deliberately not idempotent, so this is the seam callers use to dedup
// retried money requests. Requests without a key pass straight through.
func Idempotency(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("Idempotency-Key")
		if key == "" {
			return c.Next()
		}

		var status int
		var body []byte
		err := db.QueryRow(c.Context(),
			"SELECT response_status, response_body FROM idempotency_keys WHERE key_id = $1",
			key).Scan(&status, &body)

		if err == nil {
			c.Set("X-Idempotency-Hit", "true")
			c.Set("Content-Type", "application/json")
			return c.Status(status).Send(body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		resStatus := c.Response().StatusCode()
		resBody := c.Response().Body()

		_, insertErr := db.Exec(c.Context(),
			"INSERT INTO idempotency_keys (key_id, response_status, response_body) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
			key, resStatus, resBody)
		if insertErr != nil {
			slog.Error("failed to save idempotency key", "error", insertErr, "key", key)
		}

		return nil
	}
}
