package handler

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/melkiimultic/primitiveBank/internal/adapter/middleware"
	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

const defaultHistoryLimit = 10

type AccountHandler struct {
	Service *service.AccountService
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	id, err := h.Service.CreateAccount(c.Context(), actor)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *AccountHandler) Fund(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	var req domain.FundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.Service.Fund(c.Context(), actor, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"id": id})
}

func (h *AccountHandler) Transfer(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	var req domain.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.Service.Transfer(c.Context(), actor, &req); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (h *AccountHandler) CloseAccount(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid account id"})
	}

	if err := h.Service.CloseAccount(c.Context(), actor, id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	accounts, err := h.Service.AccountsOf(c.Context(), actor)
	if err != nil {
		return fail(c, err)
	}

	out := make([]fiber.Map, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, fiber.Map{
			"id":         acc.ID,
			"balance":    acc.Balance.StringFixed(domain.MoneyScale),
			"created_at": acc.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"accounts": out})
}

func (h *AccountHandler) GetHistory(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid account id"})
	}

	entries, err := h.Service.History(c.Context(), actor, id, defaultHistoryLimit)
	if err != nil {
		return fail(c, err)
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"id":        e.ID,
			"direction": e.Direction,
			"amount":    e.Amount.StringFixed(domain.MoneyScale),
			"date":      e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"transactions": out})
}
