package handler

import (
	"errors"
	"io"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/service"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
)

// WhatsAppHandler exposes the messaging session admin surface
type WhatsAppHandler struct {
	messenger  whatsapp.Messenger
	clientRepo domain.ClientRepository
	bulk       *service.BulkSender
}

// NewWhatsAppHandler creates a new WhatsAppHandler
func NewWhatsAppHandler(messenger whatsapp.Messenger, clientRepo domain.ClientRepository, bulk *service.BulkSender) *WhatsAppHandler {
	return &WhatsAppHandler{
		messenger:  messenger,
		clientRepo: clientRepo,
		bulk:       bulk,
	}
}

// Status handles GET /api/whatsapp/status
func (h *WhatsAppHandler) Status(c *fiber.Ctx) error {
	if h.messenger == nil {
		return c.JSON(fiber.Map{"status": whatsapp.StateDisabled, "ready": false})
	}
	status := h.messenger.Status(c.UserContext())
	return c.JSON(fiber.Map{
		"status": status.State,
		"ready":  status.Ready,
	})
}

// DetailedStatus handles GET /api/whatsapp/status/detailed
func (h *WhatsAppHandler) DetailedStatus(c *fiber.Ctx) error {
	if h.messenger == nil {
		return c.JSON(whatsapp.StatusInfo{State: whatsapp.StateDisabled, Message: "WhatsApp desativado"})
	}
	return c.JSON(h.messenger.Status(c.UserContext()))
}

// QRCode handles GET /api/whatsapp/qrcode
func (h *WhatsAppHandler) QRCode(c *fiber.Ctx) error {
	if h.messenger == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "WhatsApp desativado",
		})
	}
	qr, err := h.messenger.QRCode(c.UserContext())
	if err != nil {
		log.Printf("[WhatsApp] error fetching QR code: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "erro ao obter QR Code",
		})
	}
	if qr == "" {
		return c.JSON(fiber.Map{
			"qrcode":  nil,
			"message": "Nenhum QR Code pendente",
		})
	}
	return c.JSON(fiber.Map{"qrcode": qr})
}

// Reconnect handles POST /api/whatsapp/reconnect
func (h *WhatsAppHandler) Reconnect(c *fiber.Ctx) error {
	if h.messenger == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "WhatsApp desativado",
		})
	}
	result := h.messenger.Reconnect(c.UserContext())
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(result)
}

// Clients handles GET /api/whatsapp/clients
// Lists active clients for bulk campaign selection.
func (h *WhatsAppHandler) Clients(c *fiber.Ctx) error {
	clients, err := h.clientRepo.ListActive(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to list clients",
		})
	}

	type entry struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Phone    string `json:"phone,omitempty"`
		HasPhone bool   `json:"hasPhone"`
	}
	out := make([]entry, 0, len(clients))
	for _, cl := range clients {
		out = append(out, entry{ID: cl.ID, Name: cl.Name, Phone: cl.Phone, HasPhone: cl.Phone != ""})
	}
	return c.JSON(fiber.Map{"success": true, "clients": out})
}

// SendBulk handles POST /api/whatsapp/send-bulk (multipart form)
// Fields: message (template), client_ids (comma separated), media (optional file)
func (h *WhatsAppHandler) SendBulk(c *fiber.Ctx) error {
	template := c.FormValue("message")
	if strings.TrimSpace(template) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "message is required",
		})
	}

	rawIDs := c.FormValue("client_ids")
	var clientIDs []string
	for _, id := range strings.Split(rawIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			clientIDs = append(clientIDs, id)
		}
	}
	if len(clientIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "client_ids is required",
		})
	}

	req := service.BulkRequest{ClientIDs: clientIDs, Template: template}

	if fileHeader, err := c.FormFile("media"); err == nil && fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "failed to read media file",
			})
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "failed to read media file",
			})
		}
		req.Media = &whatsapp.Media{
			Data:     data,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Filename: fileHeader.Filename,
		}
	}

	result, err := h.bulk.Send(c.UserContext(), req)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, domain.ErrNotReady) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "result": result})
}
