package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// ClientHandler handles client management endpoints
type ClientHandler struct {
	clientRepo domain.ClientRepository
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(clientRepo domain.ClientRepository) *ClientHandler {
	return &ClientHandler{clientRepo: clientRepo}
}

// Create handles POST /api/clients
func (h *ClientHandler) Create(c *fiber.Ctx) error {
	var client domain.Client
	if err := c.BodyParser(&client); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if client.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "name is required",
		})
	}
	client.ID = ""
	client.Active = true

	if err := h.clientRepo.Create(c.UserContext(), &client); err != nil {
		log.Printf("[Client] error creating client: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to create client",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "client": client})
}

// Get handles GET /api/clients/:id
func (h *ClientHandler) Get(c *fiber.Ctx) error {
	client, err := h.clientRepo.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "client not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch client",
		})
	}
	return c.JSON(fiber.Map{"success": true, "client": client})
}

// List handles GET /api/clients
func (h *ClientHandler) List(c *fiber.Ctx) error {
	clients, err := h.clientRepo.ListActive(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to list clients",
		})
	}
	return c.JSON(fiber.Map{"success": true, "clients": clients})
}

// Update handles PUT /api/clients/:id
func (h *ClientHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()
	existing, err := h.clientRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "client not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch client",
		})
	}

	var update domain.Client
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	update.ID = existing.ID
	update.CreatedAt = existing.CreatedAt

	if err := h.clientRepo.Update(ctx, &update); err != nil {
		log.Printf("[Client] error updating client %s: %v", existing.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to update client",
		})
	}
	return c.JSON(fiber.Map{"success": true, "client": update})
}

// Delete handles DELETE /api/clients/:id
func (h *ClientHandler) Delete(c *fiber.Ctx) error {
	if err := h.clientRepo.Delete(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "client not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to delete client",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
