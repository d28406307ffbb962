package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrasoft/cobranca/internal/domain"
)

type stubClientRepo struct {
	clients map[string]*domain.Client
}

func (r *stubClientRepo) Create(ctx context.Context, client *domain.Client) error { return nil }
func (r *stubClientRepo) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}
func (r *stubClientRepo) ListActive(ctx context.Context) ([]*domain.Client, error) {
	return nil, nil
}
func (r *stubClientRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Client, error) {
	return nil, nil
}
func (r *stubClientRepo) Update(ctx context.Context, client *domain.Client) error { return nil }
func (r *stubClientRepo) Delete(ctx context.Context, id string) error             { return nil }

func TestPublicInvoiceViewPix(t *testing.T) {
	invoice := &domain.Invoice{
		ID:            "inv-1",
		ClientID:      "client-1",
		Title:         "Mensalidade",
		Amount:        decimal.NewFromFloat(150),
		DueDate:       time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		Status:        domain.InvoiceStatusPending,
		PaymentMethod: domain.PaymentMethodPix,
		PaymentURL:    "https://safe2pay.com.br/pay/inv-1",
		PaymentCode:   "00020126pixcopypaste",
		PaymentDetails: json.RawMessage(`{"ResponseDetail": {
			"Key": "00020126pixcopypaste",
			"QrCode": "https://safe2pay.com.br/qr/abc.png"
		}}`),
	}
	repo := newStubInvoiceRepo(invoice)
	clients := &stubClientRepo{clients: map[string]*domain.Client{
		"client-1": {ID: "client-1", Name: "Maria Silva"},
	}}

	app := fiber.New()
	h := NewPublicHandler(repo, clients, nil)
	app.Get("/public/invoice/:id", h.GetInvoice)

	resp, err := app.Test(httptest.NewRequest("GET", "/public/invoice/inv-1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var view PublicInvoiceView
	require.NoError(t, json.Unmarshal(raw, &view))

	assert.Equal(t, "inv-1", view.InvoiceID)
	assert.Equal(t, "Maria Silva", view.ClientName)
	assert.Equal(t, "R$ 150,00", view.Amount)
	assert.Equal(t, "10/09/2026", view.DueDate)
	require.NotNil(t, view.Pix)
	assert.Nil(t, view.Boleto)
	assert.Equal(t, "00020126pixcopypaste", view.Pix.CopyPaste)
	assert.Equal(t, "https://safe2pay.com.br/qr/abc.png", view.Pix.QRCode)
	assert.Equal(t, "00020126pixcopypaste", view.Pix.Code)
	assert.Equal(t, "https://safe2pay.com.br/pay/inv-1", view.Pix.URL)
}

func TestPublicInvoiceViewBoleto(t *testing.T) {
	invoice := &domain.Invoice{
		ID:            "inv-2",
		ClientID:      "client-1",
		Amount:        decimal.NewFromFloat(99.9),
		DueDate:       time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Status:        domain.InvoiceStatusPending,
		PaymentMethod: domain.PaymentMethodBoleto,
		PaymentDetails: json.RawMessage(`{"ResponseDetail": {
			"BankSlipUrl": "https://safe2pay.com.br/boleto/1.pdf",
			"DigitableLine": "34191.79001 01043.510047"
		}}`),
	}
	repo := newStubInvoiceRepo(invoice)
	clients := &stubClientRepo{clients: map[string]*domain.Client{}}

	app := fiber.New()
	h := NewPublicHandler(repo, clients, nil)
	app.Get("/public/invoice/:id", h.GetInvoice)

	resp, err := app.Test(httptest.NewRequest("GET", "/public/invoice/inv-2", nil), -1)
	require.NoError(t, err)

	raw, _ := io.ReadAll(resp.Body)
	var view PublicInvoiceView
	require.NoError(t, json.Unmarshal(raw, &view))

	require.NotNil(t, view.Boleto)
	assert.Nil(t, view.Pix)
	assert.Equal(t, "https://safe2pay.com.br/boleto/1.pdf", view.Boleto.URL)
	assert.Equal(t, "34191.79001 01043.510047", view.Boleto.Code)
}

func TestPublicInvoiceNotFound(t *testing.T) {
	app := fiber.New()
	h := NewPublicHandler(newStubInvoiceRepo(), &stubClientRepo{clients: map[string]*domain.Client{}}, nil)
	app.Get("/public/invoice/:id", h.GetInvoice)

	resp, err := app.Test(httptest.NewRequest("GET", "/public/invoice/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
