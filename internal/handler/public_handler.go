package handler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
	"github.com/ibrasoft/cobranca/internal/service"
)

// PublicViewCache caches rendered canonical payment views
type PublicViewCache interface {
	GetPublicInvoice(ctx context.Context, invoiceID string, dest interface{}) error
	SetPublicInvoice(ctx context.Context, invoiceID string, view interface{}, ttl time.Duration) error
	InvalidatePublicInvoice(ctx context.Context, invoiceID string) error
}

const publicViewTTL = 5 * time.Minute

// PixView is the payment data shown for a PIX charge. Code and URL expose
// the invoice's stored columns as-is, alongside the normalized fields.
type PixView struct {
	QRCode    string `json:"qrCode,omitempty"`
	CopyPaste string `json:"copyPaste,omitempty"`
	Code      string `json:"code,omitempty"`
	URL       string `json:"url,omitempty"`
}

// BoletoView is the payment data shown for a boleto charge
type BoletoView struct {
	URL  string `json:"url,omitempty"`
	Code string `json:"code,omitempty"`
}

// PublicInvoiceView is the unauthenticated payment page payload
type PublicInvoiceView struct {
	InvoiceID  string      `json:"invoiceId"`
	ClientName string      `json:"clientName"`
	Title      string      `json:"title,omitempty"`
	Amount     string      `json:"amount"`
	DueDate    string      `json:"dueDate"`
	Status     string      `json:"status"`
	Pix        *PixView    `json:"pix"`
	Boleto     *BoletoView `json:"boleto"`
}

// PublicHandler serves the unauthenticated payment view of an invoice
type PublicHandler struct {
	invoiceRepo domain.InvoiceRepository
	clientRepo  domain.ClientRepository
	cache       PublicViewCache
}

// NewPublicHandler creates a new PublicHandler
func NewPublicHandler(invoiceRepo domain.InvoiceRepository, clientRepo domain.ClientRepository, cache PublicViewCache) *PublicHandler {
	return &PublicHandler{
		invoiceRepo: invoiceRepo,
		clientRepo:  clientRepo,
		cache:       cache,
	}
}

// GetInvoice handles GET /public/invoice/:id
// This is a public endpoint - no authentication required
func (h *PublicHandler) GetInvoice(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invoiceID := c.Params("id")

	if h.cache != nil {
		var cached PublicInvoiceView
		if err := h.cache.GetPublicInvoice(ctx, invoiceID, &cached); err == nil {
			return c.JSON(cached)
		}
	}

	invoice, err := h.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "fatura não encontrada",
			})
		}
		log.Printf("[Public] error fetching invoice %s: %v", invoiceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "erro ao carregar fatura",
		})
	}

	clientName := ""
	if client, err := h.clientRepo.GetByID(ctx, invoice.ClientID); err == nil {
		clientName = client.Name
	}

	view := BuildPublicView(invoice, clientName)

	if h.cache != nil {
		if err := h.cache.SetPublicInvoice(ctx, invoiceID, view, publicViewTTL); err != nil {
			log.Printf("[Public] failed to cache view of %s: %v", invoiceID, err)
		}
	}

	return c.JSON(view)
}

// BuildPublicView renders the canonical payment view of an invoice. Exactly
// one of pix/boleto is populated, matching the invoice's payment method.
func BuildPublicView(invoice *domain.Invoice, clientName string) PublicInvoiceView {
	canonical := safe2pay.Normalize(invoice.PaymentDetails, invoice.PaymentURL, invoice.PaymentCode, invoice.PaymentMethod)

	view := PublicInvoiceView{
		InvoiceID:  invoice.ID,
		ClientName: clientName,
		Title:      invoice.Title,
		Amount:     service.FormatBRL(invoice.Amount),
		DueDate:    service.FormatDate(invoice.DueDate),
		Status:     invoice.Status,
	}

	switch invoice.PaymentMethod {
	case domain.PaymentMethodBoleto:
		view.Boleto = &BoletoView{
			URL:  canonical.BoletoURL,
			Code: canonical.BoletoCode,
		}
	default:
		view.Pix = &PixView{
			QRCode:    canonical.PixQrCodeImage,
			CopyPaste: canonical.PixCopyPaste,
			Code:      invoice.PaymentCode,
			URL:       invoice.PaymentURL,
		}
	}
	return view
}
