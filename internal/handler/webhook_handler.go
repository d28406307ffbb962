package handler

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/service"
)

// WebhookHandler receives payment provider status notifications.
// The provider retries on non-200 responses, so every processable request is
// answered 200 regardless of outcome; only an unparseable body earns a 400.
type WebhookHandler struct {
	reconciler *service.ReconcileService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler *service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Safe2PayWebhook handles POST /api/webhooks/safe2pay
// This is a public endpoint - no authentication required
func (h *WebhookHandler) Safe2PayWebhook(c *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		log.Printf("[Webhook] unparseable body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid JSON body",
		})
	}

	notification := unwrapNotification(payload)
	log.Printf("[Webhook] received notification: transaction=%s status=%d",
		notification.TransactionID, notification.StatusCode)

	result, err := h.reconciler.Process(c.UserContext(), notification)
	if err != nil {
		message := "erro ao processar notificação"
		switch {
		case errors.Is(err, domain.ErrInvalidPayload):
			message = "notificação sem identificador de transação"
		case errors.Is(err, domain.ErrNotFound):
			message = "fatura não encontrada para a transação"
		}
		log.Printf("[Webhook] %s: %v", message, err)
		// still 200: the provider must not retry these
		return c.JSON(fiber.Map{
			"status":  "ignored",
			"message": message,
		})
	}

	return c.JSON(fiber.Map{
		"status":           "ok",
		"message":          "notificação processada",
		"webhookId":        result.WebhookID,
		"invoiceId":        result.InvoiceID,
		"statusUpdated":    result.StatusUpdated,
		"processingTimeMs": result.ProcessingTimeMs,
	})
}

// unwrapNotification digs the status fields out of the provider payload,
// tolerating the envelope variants observed in production: the fields at the
// root, or nested under data/Data/transaction/Transaction.
func unwrapNotification(payload map[string]interface{}) service.WebhookNotification {
	body := payload
	for _, wrapper := range []string{"data", "Data", "transaction", "Transaction"} {
		if inner, ok := payload[wrapper].(map[string]interface{}); ok {
			body = inner
			break
		}
	}

	notification := service.WebhookNotification{ReceivedAt: time.Now().UTC()}

	for _, key := range []string{"IdTransaction", "idTransaction", "TransactionId", "transactionId", "Id", "id"} {
		if v, ok := body[key]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					notification.TransactionID = t
				}
			case float64:
				notification.TransactionID = strconv.FormatFloat(t, 'f', 0, 64)
			}
			if notification.TransactionID != "" {
				break
			}
		}
	}

	for _, key := range []string{"PaymentDate", "paymentDate"} {
		if s, ok := body[key].(string); ok && s != "" {
			if parsed, ok := parsePaymentDate(s); ok {
				notification.PaymentDate = parsed
				break
			}
		}
	}

	for _, key := range []string{"PaymentMethod", "paymentMethod"} {
		switch t := body[key].(type) {
		case string:
			notification.PaymentMethod = t
		case float64:
			notification.PaymentMethod = strconv.FormatFloat(t, 'f', -1, 64)
		}
		if notification.PaymentMethod != "" {
			break
		}
	}

	for _, key := range []string{"Amount", "amount"} {
		switch t := body[key].(type) {
		case string:
			notification.Amount = t
		case float64:
			notification.Amount = strconv.FormatFloat(t, 'f', -1, 64)
		}
		if notification.Amount != "" {
			break
		}
	}

	for _, key := range []string{"Status", "status", "TransactionStatus", "transactionStatus"} {
		if v, ok := body[key]; ok {
			switch t := v.(type) {
			case float64:
				notification.StatusCode = int(t)
			case string:
				if code, err := strconv.Atoi(t); err == nil {
					notification.StatusCode = code
				}
			case map[string]interface{}:
				// some payload revisions nest the code: {"Status": {"Code": 3}}
				if code, ok := t["Code"].(float64); ok {
					notification.StatusCode = int(code)
				} else if code, ok := t["code"].(float64); ok {
					notification.StatusCode = int(code)
				}
			}
			if notification.StatusCode != 0 {
				break
			}
		}
	}

	return notification
}

// parsePaymentDate accepts the timestamp shapes the provider has been seen
// sending: RFC3339, a local datetime without offset, or a bare date.
func parsePaymentDate(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
