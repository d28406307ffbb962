package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// SubscriptionHandler manages the recurring charge agreements the billing
// worker picks up every day.
type SubscriptionHandler struct {
	subscriptionRepo domain.SubscriptionRepository
	clientRepo       domain.ClientRepository
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptionRepo domain.SubscriptionRepository, clientRepo domain.ClientRepository) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionRepo: subscriptionRepo,
		clientRepo:       clientRepo,
	}
}

// CreateSubscriptionRequest represents the request body for subscription creation
type CreateSubscriptionRequest struct {
	ClientID      string `json:"client_id"`
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	BillingDay    int    `json:"billing_day"`
	PaymentMethod string `json:"payment_method"`
}

// Create handles POST /api/subscriptions
func (h *SubscriptionHandler) Create(c *fiber.Ctx) error {
	var req CreateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if req.ClientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "client_id is required",
		})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "amount must be a positive decimal",
		})
	}
	// days past 28 would skip short months, so they are not accepted
	if req.BillingDay < 1 || req.BillingDay > 28 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "billing_day must be between 1 and 28",
		})
	}
	if req.PaymentMethod != domain.PaymentMethodPix && req.PaymentMethod != domain.PaymentMethodBoleto {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "payment_method must be pix or boleto",
		})
	}

	ctx := c.UserContext()

	if _, err := h.clientRepo.GetByID(ctx, req.ClientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "client not found",
			})
		}
		log.Printf("[Subscription] error fetching client: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch client",
		})
	}

	sub := &domain.Subscription{
		ClientID:      req.ClientID,
		Name:          req.Name,
		Amount:        amount,
		BillingDay:    req.BillingDay,
		PaymentMethod: req.PaymentMethod,
		Active:        true,
	}
	if err := h.subscriptionRepo.Create(ctx, sub); err != nil {
		log.Printf("[Subscription] error creating subscription: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to create subscription",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"subscription": sub,
	})
}

// Get handles GET /api/subscriptions/:id
func (h *SubscriptionHandler) Get(c *fiber.Ctx) error {
	sub, err := h.subscriptionRepo.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch subscription",
		})
	}
	return c.JSON(fiber.Map{"success": true, "subscription": sub})
}

// UpdateSubscriptionRequest represents the request body for subscription edits.
// Omitted fields keep their current value.
type UpdateSubscriptionRequest struct {
	Name          *string `json:"name"`
	Amount        *string `json:"amount"`
	BillingDay    *int    `json:"billing_day"`
	PaymentMethod *string `json:"payment_method"`
	Active        *bool   `json:"active"`
}

// Update handles PUT /api/subscriptions/:id
// Pausing a subscription (active=false) stops the daily billing run from
// picking it up without losing its history.
func (h *SubscriptionHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sub, err := h.subscriptionRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch subscription",
		})
	}

	var req UpdateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "amount must be a positive decimal",
			})
		}
		sub.Amount = amount
	}
	if req.BillingDay != nil {
		if *req.BillingDay < 1 || *req.BillingDay > 28 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "billing_day must be between 1 and 28",
			})
		}
		sub.BillingDay = *req.BillingDay
	}
	if req.PaymentMethod != nil {
		if *req.PaymentMethod != domain.PaymentMethodPix && *req.PaymentMethod != domain.PaymentMethodBoleto {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "payment_method must be pix or boleto",
			})
		}
		sub.PaymentMethod = *req.PaymentMethod
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}

	if err := h.subscriptionRepo.Update(ctx, sub); err != nil {
		log.Printf("[Subscription] error updating subscription %s: %v", sub.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to update subscription",
		})
	}

	return c.JSON(fiber.Map{"success": true, "subscription": sub})
}

// Delete handles DELETE /api/subscriptions/:id
func (h *SubscriptionHandler) Delete(c *fiber.Ctx) error {
	if err := h.subscriptionRepo.Delete(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to delete subscription",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
