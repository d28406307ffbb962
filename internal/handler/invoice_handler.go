package handler

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
	"github.com/ibrasoft/cobranca/internal/service"
)

// InvoiceHandler handles invoice management endpoints
type InvoiceHandler struct {
	invoiceRepo domain.InvoiceRepository
	clientRepo  domain.ClientRepository
	charges     *service.ChargeService
	notifier    *service.Notifier
	cache       PublicViewCache
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(
	invoiceRepo domain.InvoiceRepository,
	clientRepo domain.ClientRepository,
	charges *service.ChargeService,
	notifier *service.Notifier,
	cache PublicViewCache,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceRepo: invoiceRepo,
		clientRepo:  clientRepo,
		charges:     charges,
		notifier:    notifier,
		cache:       cache,
	}
}

// CreateInvoiceRequest represents the request body for invoice creation
type CreateInvoiceRequest struct {
	ClientID      string `json:"client_id"`
	Title         string `json:"title"`
	Amount        string `json:"amount"`
	DueDate       string `json:"due_date"` // YYYY-MM-DD
	PaymentMethod string `json:"payment_method"`
	Notify        bool   `json:"notify"`
}

// Create handles POST /api/invoices
// Creates the invoice, registers the charge at the provider and optionally
// dispatches notifications.
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var req CreateInvoiceRequest
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
	dueDate, err := time.ParseInLocation("2006-01-02", req.DueDate, time.UTC)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "due_date must be YYYY-MM-DD",
		})
	}
	if req.PaymentMethod != domain.PaymentMethodPix && req.PaymentMethod != domain.PaymentMethodBoleto {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "payment_method must be pix or boleto",
		})
	}

	ctx := c.UserContext()

	client, err := h.clientRepo.GetByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "client not found",
			})
		}
		log.Printf("[Invoice] error fetching client: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch client",
		})
	}

	invoice := &domain.Invoice{
		ClientID:      client.ID,
		Title:         req.Title,
		Amount:        amount,
		DueDate:       dueDate,
		Status:        domain.InvoiceStatusPending,
		PaymentMethod: req.PaymentMethod,
	}
	if err := h.invoiceRepo.Create(ctx, invoice); err != nil {
		log.Printf("[Invoice] error creating invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to create invoice",
		})
	}

	if err := h.charges.Issue(ctx, invoice, client); err != nil {
		var gwErr *safe2pay.GatewayError
		if errors.As(err, &gwErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success":  false,
				"error":    gwErr.Message,
				"provider": gwErr.Provider,
			})
		}
		log.Printf("[Invoice] error issuing charge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to issue charge",
		})
	}

	response := fiber.Map{
		"success": true,
		"invoice": invoice,
	}
	if req.Notify {
		response["dispatch"] = h.notifier.Dispatch(ctx, invoice, client, service.AllChannels())
	}
	return c.Status(fiber.StatusCreated).JSON(response)
}

// Get handles GET /api/invoices/:id
func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	invoice, err := h.invoiceRepo.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch invoice",
		})
	}
	return c.JSON(fiber.Map{"success": true, "invoice": invoice})
}

// ListByClient handles GET /api/clients/:id/invoices
func (h *InvoiceHandler) ListByClient(c *fiber.Ctx) error {
	invoices, err := h.invoiceRepo.ListByClient(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to list invoices",
		})
	}
	return c.JSON(fiber.Map{"success": true, "invoices": invoices})
}

// NotifyRequest optionally narrows the channels of a manual re-send.
// Omitted flags default to true.
type NotifyRequest struct {
	SendEmail    *bool `json:"send_email"`
	SendWhatsApp *bool `json:"send_whatsapp"`
}

func (r NotifyRequest) options() service.DispatchOptions {
	opts := service.AllChannels()
	if r.SendEmail != nil {
		opts.Email = *r.SendEmail
	}
	if r.SendWhatsApp != nil {
		opts.WhatsApp = *r.SendWhatsApp
	}
	return opts
}

// Notify handles POST /api/invoices/:id/notify
// Re-dispatches the invoice notification on demand, on the channels the
// operator selected.
func (h *InvoiceHandler) Notify(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoice, client, errResp := h.loadInvoiceAndClient(c)
	if errResp != nil {
		return errResp(c)
	}

	var req NotifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "invalid request body",
			})
		}
	}

	result := h.notifier.Dispatch(ctx, invoice, client, req.options())
	return c.JSON(fiber.Map{"success": true, "dispatch": result})
}

// MarkPaid handles POST /api/invoices/:id/mark-paid
// The one place a payment confirmation message is sent automatically.
func (h *InvoiceHandler) MarkPaid(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoice, client, errResp := h.loadInvoiceAndClient(c)
	if errResp != nil {
		return errResp(c)
	}

	now := time.Now().UTC()
	if err := h.invoiceRepo.ApplyStatus(ctx, invoice.ID, domain.InvoiceStatusPaid, &now); err != nil {
		log.Printf("[Invoice] error marking invoice %s paid: %v", invoice.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to mark invoice paid",
		})
	}
	invoice.MarkPaid(now)
	h.invalidatePublicView(c, invoice.ID)

	confirmation := h.notifier.SendPaymentConfirmation(ctx, invoice, client)
	return c.JSON(fiber.Map{
		"success":      true,
		"invoice":      invoice,
		"confirmation": confirmation,
	})
}

// UpdateInvoiceRequest represents the request body for invoice edits.
// Omitted fields keep their current value.
type UpdateInvoiceRequest struct {
	Title   *string `json:"title"`
	Amount  *string `json:"amount"`
	DueDate *string `json:"due_date"` // YYYY-MM-DD
}

// Update handles PUT /api/invoices/:id
// Paid invoices are immutable; edits to them are rejected.
func (h *InvoiceHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoice, err := h.invoiceRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch invoice",
		})
	}
	if invoice.Status == domain.InvoiceStatusPaid || invoice.PaidDate != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "fatura paga não pode ser alterada",
		})
	}

	var req UpdateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if req.Title != nil {
		invoice.Title = *req.Title
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "amount must be a positive decimal",
			})
		}
		invoice.Amount = amount
	}
	if req.DueDate != nil {
		dueDate, err := time.ParseInLocation("2006-01-02", *req.DueDate, time.UTC)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "due_date must be YYYY-MM-DD",
			})
		}
		invoice.DueDate = dueDate
	}

	if err := h.invoiceRepo.Update(ctx, invoice); err != nil {
		log.Printf("[Invoice] error updating invoice %s: %v", invoice.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to update invoice",
		})
	}
	h.invalidatePublicView(c, invoice.ID)

	return c.JSON(fiber.Map{"success": true, "invoice": invoice})
}

// Cancel handles POST /api/invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoice, err := h.invoiceRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "invoice not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to fetch invoice",
		})
	}

	if err := h.charges.Cancel(ctx, invoice); err != nil {
		log.Printf("[Invoice] error canceling invoice %s: %v", invoice.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "failed to cancel charge at provider",
		})
	}
	h.invalidatePublicView(c, invoice.ID)

	return c.JSON(fiber.Map{"success": true})
}

func (h *InvoiceHandler) loadInvoiceAndClient(c *fiber.Ctx) (*domain.Invoice, *domain.Client, func(*fiber.Ctx) error) {
	ctx := c.UserContext()
	invoice, err := h.invoiceRepo.GetByID(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "invoice not found"})
			}
		}
		return nil, nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to fetch invoice"})
		}
	}
	client, err := h.clientRepo.GetByID(ctx, invoice.ClientID)
	if err != nil {
		return nil, nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to fetch invoice client"})
		}
	}
	return invoice, client, nil
}

func (h *InvoiceHandler) invalidatePublicView(c *fiber.Ctx, invoiceID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidatePublicInvoice(c.UserContext(), invoiceID); err != nil {
		log.Printf("[Invoice] failed to invalidate public view of %s: %v", invoiceID, err)
	}
}
