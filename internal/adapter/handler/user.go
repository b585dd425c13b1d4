package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/melkiimultic/primitiveBank/internal/adapter/middleware"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
)

type UserHandler struct {
	Service *service.UserService
}

func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req service.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.Service.Register(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": id})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	token, err := h.Service.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"id":         actor.ID,
		"username":   actor.Username,
		"first_name": actor.FirstName,
		"last_name":  actor.LastName,
	})
}

type userInfoRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *UserHandler) UpdateInfo(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	var req userInfoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.Service.UpdateInfo(c.Context(), actor, req.FirstName, req.LastName); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (h *UserHandler) DeleteMe(c *fiber.Ctx) error {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return fail(c, err)
	}

	if err := h.Service.DeleteUser(c.Context(), actor); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}
