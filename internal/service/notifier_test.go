package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrasoft/cobranca/internal/domain"
)

func testClient() *domain.Client {
	return &domain.Client{
		ID:    "client-1",
		Name:  "Maria Silva",
		Email: "maria@example.com",
		Phone: "11999990000",
	}
}

func testInvoice() *domain.Invoice {
	return &domain.Invoice{
		ID:            "inv-1",
		ClientID:      "client-1",
		Title:         "Mensalidade Setembro",
		Amount:        decimal.NewFromFloat(1234.56),
		DueDate:       time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		Status:        domain.InvoiceStatusPending,
		PaymentMethod: domain.PaymentMethodPix,
		PublicLink:    "https://cobranca.test/public/invoice/inv-1",
	}
}

func TestDispatchBothChannels(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	mailer := &fakeMailer{}
	messenger := &fakeMessenger{ready: true}
	n := NewNotifier(repo, mailer, messenger, NotifierConfig{WhatsAppEnabled: true, FromName: "Cobrança"})

	result := n.Dispatch(context.Background(), testInvoice(), testClient(), AllChannels())

	require.NotNil(t, result.Email)
	assert.True(t, result.Email.Success)
	require.NotNil(t, result.WhatsApp)
	assert.True(t, result.WhatsApp.Success)
	assert.True(t, result.AnySent())

	// message carries the amount in local notation and the public link
	require.Len(t, messenger.texts, 1)
	assert.Contains(t, messenger.texts[0], "*Maria Silva*")
	assert.Contains(t, messenger.texts[0], "R$ 1.234,56")
	assert.Contains(t, messenger.texts[0], "10/09/2026")
	assert.Contains(t, messenger.texts[0], "https://cobranca.test/public/invoice/inv-1")

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.True(t, inv.Sent)
	assert.Len(t, inv.Notifications, 2)
}

func TestDispatchHonorsChannelSelection(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	mailer := &fakeMailer{}
	messenger := &fakeMessenger{ready: true}
	n := NewNotifier(repo, mailer, messenger, NotifierConfig{WhatsAppEnabled: true})

	result := n.Dispatch(context.Background(), testInvoice(), testClient(), DispatchOptions{Email: true})

	require.NotNil(t, result.Email)
	assert.True(t, result.Email.Success)
	assert.Nil(t, result.WhatsApp)
	assert.Empty(t, messenger.texts)

	result = n.Dispatch(context.Background(), testInvoice(), testClient(), DispatchOptions{WhatsApp: true})

	assert.Nil(t, result.Email)
	require.NotNil(t, result.WhatsApp)
	assert.True(t, result.WhatsApp.Success)
	require.Len(t, mailer.subjects, 1) // untouched by the second dispatch
}

func TestDispatchNeverFails(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	mailer := &fakeMailer{sendErr: errors.New("smtp down")}
	messenger := &fakeMessenger{ready: true, sendErr: errors.New("session gone")}
	n := NewNotifier(repo, mailer, messenger, NotifierConfig{WhatsAppEnabled: true})

	result := n.Dispatch(context.Background(), testInvoice(), testClient(), AllChannels())

	require.NotNil(t, result.Email)
	assert.False(t, result.Email.Success)
	assert.Equal(t, "smtp down", result.Email.Error)

	require.NotNil(t, result.WhatsApp)
	assert.False(t, result.WhatsApp.Success)
	assert.True(t, result.WhatsApp.Manual)
	assert.NotEmpty(t, result.WhatsApp.PreparedMessage)

	// failures still land on the audit trail, sent flag stays down
	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.False(t, inv.Sent)
	assert.Len(t, inv.Notifications, 2)
}

func TestDispatchManualFallbackWhenDisabled(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	n := NewNotifier(repo, nil, nil, NotifierConfig{WhatsAppEnabled: false, FallbackPixKey: "chave@pix.com"})

	client := testClient()
	client.Email = "" // chat only

	result := n.Dispatch(context.Background(), testInvoice(), client, AllChannels())

	assert.Nil(t, result.Email)
	require.NotNil(t, result.WhatsApp)
	assert.False(t, result.WhatsApp.Success)
	assert.True(t, result.WhatsApp.Manual)
	assert.Contains(t, result.WhatsApp.PreparedMessage, "Maria Silva")
	assert.False(t, result.AnySent())
}

func TestDispatchClientWithoutContacts(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	n := NewNotifier(repo, &fakeMailer{}, &fakeMessenger{ready: true}, NotifierConfig{WhatsAppEnabled: true})

	client := testClient()
	client.Email = ""
	client.Phone = ""

	result := n.Dispatch(context.Background(), testInvoice(), client, AllChannels())

	require.NotNil(t, result.WhatsApp)
	assert.True(t, result.WhatsApp.Manual)
	assert.NotEmpty(t, result.WhatsApp.PreparedMessage)
}

func TestDispatchFallbackPixKeyWhenNoPaymentData(t *testing.T) {
	repo := newMemInvoiceRepo()
	inv := testInvoice()
	inv.PublicLink = ""
	inv.PaymentCode = ""
	repo.put(inv)
	messenger := &fakeMessenger{ready: true}
	n := NewNotifier(repo, nil, messenger, NotifierConfig{WhatsAppEnabled: true, FallbackPixKey: "financeiro@empresa.com"})

	n.Dispatch(context.Background(), inv, testClient(), AllChannels())

	require.Len(t, messenger.texts, 1)
	assert.Contains(t, messenger.texts[0], "Chave PIX: financeiro@empresa.com")
}

func TestSendPaymentConfirmation(t *testing.T) {
	repo := newMemInvoiceRepo()
	repo.put(testInvoice())
	mailer := &fakeMailer{}
	messenger := &fakeMessenger{ready: true}
	n := NewNotifier(repo, mailer, messenger, NotifierConfig{WhatsAppEnabled: true, FromName: "Cobrança"})

	result := n.SendPaymentConfirmation(context.Background(), testInvoice(), testClient())

	assert.True(t, result.AnySent())
	require.Len(t, messenger.texts, 1)
	assert.Contains(t, messenger.texts[0], "Recebemos o pagamento")
	require.Len(t, mailer.subjects, 1)
	assert.Contains(t, mailer.subjects[0], "Pagamento confirmado")
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{9.9, "R$ 9,90"},
		{150, "R$ 150,00"},
		{1234.56, "R$ 1.234,56"},
		{1234567.89, "R$ 1.234.567,89"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBRL(decimal.NewFromFloat(tt.in)))
	}
}
