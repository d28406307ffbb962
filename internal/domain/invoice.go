package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status constants
const (
	InvoiceStatusPending  = "pending"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusOverdue  = "overdue"
	InvoiceStatusCanceled = "canceled"
)

// Payment method constants
const (
	PaymentMethodPix    = "pix"
	PaymentMethodBoleto = "boleto"
)

// Notification channel constants used in the invoice audit trail
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelWebhook  = "webhook"
	ChannelGeneral  = "general"
)

// NotificationRecord is one entry of the invoice's append-only audit trail.
// Entries are never rewritten; webhook deliveries and channel sends both land here.
type NotificationRecord struct {
	Channel string                 `bson:"channel" json:"channel"`
	SentAt  time.Time              `bson:"sent_at" json:"sent_at"`
	Status  string                 `bson:"status" json:"status"` // sent | failed | received
	Error   string                 `bson:"error,omitempty" json:"error,omitempty"`
	Meta    map[string]interface{} `bson:"meta,omitempty" json:"meta,omitempty"`
}

// Invoice represents a billable charge issued to a client
type Invoice struct {
	ID             string               `bson:"_id,omitempty" json:"id"`
	ClientID       string               `bson:"client_id" json:"client_id"`
	SubscriptionID string               `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	Title          string               `bson:"title,omitempty" json:"title,omitempty"`
	Amount         decimal.Decimal      `bson:"-" json:"amount"`
	DueDate        time.Time            `bson:"due_date" json:"due_date"` // date only, no time component
	PaidDate       *time.Time           `bson:"paid_date,omitempty" json:"paid_date,omitempty"`
	Status         string               `bson:"status" json:"status"`
	PaymentMethod  string               `bson:"payment_method" json:"payment_method"`
	PaymentURL     string               `bson:"payment_url,omitempty" json:"payment_url,omitempty"`
	PaymentCode    string               `bson:"payment_code,omitempty" json:"payment_code,omitempty"`
	PaymentDetails json.RawMessage      `bson:"-" json:"payment_details,omitempty"` // raw provider response, kept for audit
	ProviderID     string               `bson:"provider_id,omitempty" json:"provider_id,omitempty"`
	PublicLink     string               `bson:"public_link,omitempty" json:"public_link,omitempty"`
	Notifications  []NotificationRecord `bson:"notifications" json:"notifications"`
	Sent           bool                 `bson:"sent" json:"sent"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updated_at"`
}

// MarkPaid sets the paid timestamp if it has not been set yet.
// Returns true when this call actually set it, false on replays.
func (i *Invoice) MarkPaid(at time.Time) bool {
	if i.PaidDate != nil {
		return false
	}
	i.PaidDate = &at
	i.Status = InvoiceStatusPaid
	return true
}

// SentFromAudit derives the sent flag: true iff any channel entry succeeded.
func SentFromAudit(entries []NotificationRecord) bool {
	for _, e := range entries {
		if e.Status == "sent" && (e.Channel == ChannelEmail || e.Channel == ChannelWhatsApp) {
			return true
		}
	}
	return false
}

// InvoiceRepository defines operations for managing invoices
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetByProviderID(ctx context.Context, providerID string) (*Invoice, error)
	ListByClient(ctx context.Context, clientID string) ([]*Invoice, error)
	ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*Invoice, error)
	ExistsForSubscriptionBetween(ctx context.Context, subscriptionID string, from, to time.Time) (bool, error)
	// SetGatewayData persists the provider response captured at issuance time.
	SetGatewayData(ctx context.Context, id, providerID, paymentURL, paymentCode string, details json.RawMessage, publicLink string) error
	// ApplyStatus sets the invoice status; when paidAt is non-nil the paid date
	// is written only if it was previously unset (set-once, replay safe).
	ApplyStatus(ctx context.Context, id, status string, paidAt *time.Time) error
	// AppendNotifications pushes audit entries without touching prior ones.
	// When markSent is true the sent flag is raised; it is never lowered.
	AppendNotifications(ctx context.Context, id string, entries []NotificationRecord, markSent bool) error
	Update(ctx context.Context, invoice *Invoice) error
	Delete(ctx context.Context, id string) error
}
