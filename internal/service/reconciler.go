package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
)

// WebhookNotification is a provider status notification after envelope
// unwrapping, ready for reconciliation.
type WebhookNotification struct {
	TransactionID string
	StatusCode    int
	PaymentDate   time.Time // zero when the event carried none
	PaymentMethod string
	Amount        string
	ReceivedAt    time.Time
}

// ReconcileResult reports what a notification did to the invoice
type ReconcileResult struct {
	WebhookID        string `json:"webhookId"`
	InvoiceID        string `json:"invoiceId"`
	Status           string `json:"status"`
	StatusUpdated    bool   `json:"statusUpdated"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// ViewInvalidator drops a cached public payment view after its invoice changes
type ViewInvalidator interface {
	InvalidatePublicInvoice(ctx context.Context, invoiceID string) error
}

// ReconcileService applies provider status notifications to invoices.
// Replayed notifications are harmless: status converges to the same value
// and the paid date never moves once set.
type ReconcileService struct {
	invoices domain.InvoiceRepository
	views    ViewInvalidator
}

func NewReconcileService(invoices domain.InvoiceRepository, views ViewInvalidator) *ReconcileService {
	return &ReconcileService{invoices: invoices, views: views}
}

func (s *ReconcileService) Process(ctx context.Context, notification WebhookNotification) (*ReconcileResult, error) {
	start := time.Now()
	webhookID := ulid.Make().String()

	if notification.TransactionID == "" {
		return nil, fmt.Errorf("notification without transaction id: %w", domain.ErrInvalidPayload)
	}

	invoice, err := s.invoices.GetByProviderID(ctx, notification.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("lookup invoice for transaction %s: %w", notification.TransactionID, err)
	}

	mapped := safe2pay.MapStatus(notification.StatusCode)

	receivedAt := notification.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	statusUpdated := invoice.Status != mapped.Status
	var paidAt *time.Time
	if mapped.Status == domain.InvoiceStatusPaid && invoice.PaidDate == nil {
		// prefer the provider's own payment timestamp over receive time
		when := receivedAt
		if !notification.PaymentDate.IsZero() {
			when = notification.PaymentDate.UTC()
		}
		paidAt = &when
		statusUpdated = true
	}

	if err := s.invoices.ApplyStatus(ctx, invoice.ID, mapped.Status, paidAt); err != nil {
		return nil, fmt.Errorf("apply status to invoice %s: %w", invoice.ID, err)
	}
	if statusUpdated && s.views != nil {
		if err := s.views.InvalidatePublicInvoice(ctx, invoice.ID); err != nil {
			log.Printf("[Reconcile] failed to invalidate public view of %s: %v", invoice.ID, err)
		}
	}

	audit := domain.NotificationRecord{
		Channel: domain.ChannelWebhook,
		SentAt:  receivedAt,
		Status:  "received",
		Meta: map[string]interface{}{
			"webhookId":   webhookID,
			"statusCode":  notification.StatusCode,
			"status":      mapped.Status,
			"description": mapped.Description,
			"transaction": notification.TransactionID,
		},
	}
	if notification.PaymentMethod != "" {
		audit.Meta["paymentMethod"] = notification.PaymentMethod
	}
	if notification.Amount != "" {
		audit.Meta["amount"] = notification.Amount
	}
	if !notification.PaymentDate.IsZero() {
		audit.Meta["paymentDate"] = notification.PaymentDate.UTC()
	}
	if err := s.invoices.AppendNotifications(ctx, invoice.ID, []domain.NotificationRecord{audit}, false); err != nil {
		// the status change already landed; the missing audit entry is not
		// worth failing the provider's delivery over
		log.Printf("[Reconcile] failed to record webhook audit on invoice %s: %v", invoice.ID, err)
	}

	log.Printf("[Reconcile] invoice %s: provider status %d -> %s (updated: %v)",
		invoice.ID, notification.StatusCode, mapped.Status, statusUpdated)

	return &ReconcileResult{
		WebhookID:        webhookID,
		InvoiceID:        invoice.ID,
		Status:           mapped.Status,
		StatusUpdated:    statusUpdated,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}
