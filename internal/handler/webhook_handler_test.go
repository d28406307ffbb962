package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/service"
)

// stubInvoiceRepo is a minimal in-memory domain.InvoiceRepository
type stubInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
}

func newStubInvoiceRepo(invoices ...*domain.Invoice) *stubInvoiceRepo {
	r := &stubInvoiceRepo{invoices: map[string]*domain.Invoice{}}
	for _, inv := range invoices {
		r.invoices[inv.ID] = inv
	}
	return r
}

func (r *stubInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *stubInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (r *stubInvoiceRepo) GetByProviderID(ctx context.Context, providerID string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ProviderID == providerID {
			return inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubInvoiceRepo) ListByClient(ctx context.Context, clientID string) ([]*domain.Invoice, error) {
	return nil, nil
}

func (r *stubInvoiceRepo) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error) {
	return nil, nil
}

func (r *stubInvoiceRepo) ExistsForSubscriptionBetween(ctx context.Context, subscriptionID string, from, to time.Time) (bool, error) {
	return false, nil
}

func (r *stubInvoiceRepo) SetGatewayData(ctx context.Context, id, providerID, paymentURL, paymentCode string, details json.RawMessage, publicLink string) error {
	return nil
}

func (r *stubInvoiceRepo) ApplyStatus(ctx context.Context, id, status string, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Status = status
	if paidAt != nil && inv.PaidDate == nil {
		t := *paidAt
		inv.PaidDate = &t
	}
	return nil
}

func (r *stubInvoiceRepo) AppendNotifications(ctx context.Context, id string, entries []domain.NotificationRecord, markSent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Notifications = append(inv.Notifications, entries...)
	return nil
}

func (r *stubInvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[invoice.ID]; !ok {
		return domain.ErrNotFound
	}
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *stubInvoiceRepo) Delete(ctx context.Context, id string) error { return nil }

func webhookApp(repo domain.InvoiceRepository) *fiber.App {
	app := fiber.New()
	h := NewWebhookHandler(service.NewReconcileService(repo, nil))
	app.Post("/api/webhooks/safe2pay", h.Safe2PayWebhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/webhooks/safe2pay", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func TestWebhookUpdatesInvoice(t *testing.T) {
	repo := newStubInvoiceRepo(&domain.Invoice{
		ID:         "inv-1",
		Status:     domain.InvoiceStatusPending,
		ProviderID: "tx-100",
	})
	app := webhookApp(repo)

	status, body := postWebhook(t, app, `{"IdTransaction": "tx-100", "Status": 4}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "inv-1", body["invoiceId"])
	assert.Equal(t, true, body["statusUpdated"])
	assert.NotEmpty(t, body["webhookId"])
	assert.Contains(t, body, "processingTimeMs")

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidDate)
}

func TestWebhookUnwrapsEnvelopes(t *testing.T) {
	payloads := []string{
		`{"data": {"IdTransaction": "tx-100", "Status": 4}}`,
		`{"Data": {"idTransaction": "tx-100", "status": 4}}`,
		`{"transaction": {"TransactionId": "tx-100", "Status": "4"}}`,
		`{"Transaction": {"Id": "tx-100", "Status": {"Code": 4}}}`,
	}
	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			repo := newStubInvoiceRepo(&domain.Invoice{
				ID:         "inv-1",
				Status:     domain.InvoiceStatusPending,
				ProviderID: "tx-100",
			})
			app := webhookApp(repo)

			status, body := postWebhook(t, app, payload)
			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, "ok", body["status"])

			inv, _ := repo.GetByID(context.Background(), "inv-1")
			assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
		})
	}
}

func TestWebhookUsesProviderPaymentDate(t *testing.T) {
	repo := newStubInvoiceRepo(&domain.Invoice{
		ID:         "inv-1",
		Status:     domain.InvoiceStatusPending,
		ProviderID: "tx-100",
	})
	app := webhookApp(repo)

	status, body := postWebhook(t, app,
		`{"IdTransaction": "tx-100", "Status": 4, "PaymentDate": "2026-01-02T10:00:00Z", "PaymentMethod": "6", "Amount": 350.5}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	require.NotNil(t, inv.PaidDate)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), inv.PaidDate.UTC())

	require.NotEmpty(t, inv.Notifications)
	meta := inv.Notifications[len(inv.Notifications)-1].Meta
	assert.Equal(t, "6", meta["paymentMethod"])
	assert.Equal(t, "350.5", meta["amount"])
}

func TestWebhookWithoutPaymentDateFallsBackToNow(t *testing.T) {
	repo := newStubInvoiceRepo(&domain.Invoice{
		ID:         "inv-1",
		Status:     domain.InvoiceStatusPending,
		ProviderID: "tx-100",
	})
	app := webhookApp(repo)

	before := time.Now().UTC()
	status, _ := postWebhook(t, app, `{"IdTransaction": "tx-100", "Status": 4}`)
	assert.Equal(t, fiber.StatusOK, status)

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	require.NotNil(t, inv.PaidDate)
	assert.False(t, inv.PaidDate.Before(before))
}

func TestWebhookNumericTransactionID(t *testing.T) {
	repo := newStubInvoiceRepo(&domain.Invoice{
		ID:         "inv-1",
		Status:     domain.InvoiceStatusPending,
		ProviderID: "78910",
	})
	app := webhookApp(repo)

	status, body := postWebhook(t, app, `{"IdTransaction": 78910, "Status": 7}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookUnknownInvoiceStillAnswers200(t *testing.T) {
	app := webhookApp(newStubInvoiceRepo())

	status, body := postWebhook(t, app, `{"IdTransaction": "tx-missing", "Status": 4}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ignored", body["status"])
}

func TestWebhookMissingTransactionIDStillAnswers200(t *testing.T) {
	app := webhookApp(newStubInvoiceRepo())

	status, body := postWebhook(t, app, `{"Status": 4}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ignored", body["status"])
}

func TestWebhookUnparseableBodyIs400(t *testing.T) {
	app := webhookApp(newStubInvoiceRepo())

	req := httptest.NewRequest("POST", "/api/webhooks/safe2pay", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	repo := newStubInvoiceRepo(&domain.Invoice{
		ID:         "inv-1",
		Status:     domain.InvoiceStatusPending,
		ProviderID: "tx-100",
	})
	app := webhookApp(repo)

	status, _ := postWebhook(t, app, `{"IdTransaction": "tx-100", "Status": 4}`)
	assert.Equal(t, fiber.StatusOK, status)
	inv, _ := repo.GetByID(context.Background(), "inv-1")
	firstPaid := *inv.PaidDate

	status, body := postWebhook(t, app, `{"IdTransaction": "tx-100", "Status": 7}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["statusUpdated"])

	inv, _ = repo.GetByID(context.Background(), "inv-1")
	assert.Equal(t, firstPaid, *inv.PaidDate)
}
