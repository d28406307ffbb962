package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Subscription represents a recurring charge agreement with a client
type Subscription struct {
	ID              string          `bson:"_id,omitempty" json:"id"`
	ClientID        string          `bson:"client_id" json:"client_id"`
	Name            string          `bson:"name,omitempty" json:"name,omitempty"`
	Amount          decimal.Decimal `bson:"-" json:"amount"`
	BillingDay      int             `bson:"billing_day" json:"billing_day"` // 1..28
	PaymentMethod   string          `bson:"payment_method" json:"payment_method"`
	Active          bool            `bson:"active" json:"active"`
	NextBillingDate *time.Time      `bson:"next_billing_date,omitempty" json:"next_billing_date,omitempty"`
	CreatedAt       time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updated_at"`
}

// NextDueDate computes the due date for the charge generated on billing day
// in the month of now. Days beyond the month's length clamp to its last day.
func NextDueDate(billingDay int, now time.Time) time.Time {
	year, month, _ := now.Date()
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := billingDay
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// MonthWindow returns the first instant of now's month and of the next month,
// the interval used to detect an already-issued invoice for a subscription.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	year, month, _ := now.Date()
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// SubscriptionRepository defines operations for managing subscriptions
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id string) (*Subscription, error)
	ListActiveByBillingDay(ctx context.Context, day int) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}
