package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
)

type fakeGateway struct {
	createResp json.RawMessage
	createErr  error
	canceled   []string
}

func (f *fakeGateway) CreatePayment(ctx context.Context, charge *safe2pay.ChargeRequest) (json.RawMessage, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeGateway) CancelPayment(ctx context.Context, providerID string) (json.RawMessage, error) {
	f.canceled = append(f.canceled, providerID)
	return json.RawMessage(`{}`), nil
}

func TestChargeIssueBindsGatewayData(t *testing.T) {
	repo := newMemInvoiceRepo()
	inv := testInvoice()
	inv.PublicLink = ""
	repo.put(inv)

	gateway := &fakeGateway{createResp: json.RawMessage(`{
		"ResponseDetail": {
			"IdTransaction": 78910,
			"QrCode": "https://safe2pay.com.br/qr/abc.png",
			"Key": "00020126pixcopypaste"
		}
	}`)}

	svc := NewChargeService(repo, gateway, safe2pay.Config{}, "https://cobranca.test")
	err := svc.Issue(context.Background(), inv, testClient())
	require.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, "78910", stored.ProviderID)
	assert.Equal(t, "00020126pixcopypaste", stored.PaymentCode)
	assert.Equal(t, "https://safe2pay.com.br/qr/abc.png", stored.PaymentURL)
	assert.Equal(t, "https://cobranca.test/public/invoice/inv-1", stored.PublicLink)
	assert.NotEmpty(t, stored.PaymentDetails)
}

func TestChargeIssueRollsBackOnGatewayError(t *testing.T) {
	repo := newMemInvoiceRepo()
	inv := testInvoice()
	repo.put(inv)

	gateway := &fakeGateway{createErr: &safe2pay.GatewayError{Endpoint: "/Payment", Message: "CPF inválido"}}

	svc := NewChargeService(repo, gateway, safe2pay.Config{}, "https://cobranca.test")
	err := svc.Issue(context.Background(), inv, testClient())
	require.Error(t, err)

	var gwErr *safe2pay.GatewayError
	assert.ErrorAs(t, err, &gwErr)

	// no half-issued invoice survives a provider rejection
	_, err = repo.GetByID(context.Background(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChargeCancel(t *testing.T) {
	repo := newMemInvoiceRepo()
	inv := testInvoice()
	inv.ProviderID = "tx-55"
	repo.put(inv)

	gateway := &fakeGateway{}
	svc := NewChargeService(repo, gateway, safe2pay.Config{}, "https://cobranca.test")

	err := svc.Cancel(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-55"}, gateway.canceled)

	stored, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, domain.InvoiceStatusCanceled, stored.Status)
}
