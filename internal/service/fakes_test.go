package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
)

// memInvoiceRepo is an in-memory domain.InvoiceRepository for service tests
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	nextID   int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: map[string]*domain.Invoice{}}
}

func (r *memInvoiceRepo) put(inv *domain.Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = inv
}

func (r *memInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if invoice.ID == "" {
		invoice.ID = time.Now().Format("20060102") + string(rune('a'+r.nextID))
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusPending
	}
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *memInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (r *memInvoiceRepo) GetByProviderID(ctx context.Context, providerID string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ProviderID == providerID {
			return inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memInvoiceRepo) ListByClient(ctx context.Context, clientID string) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.invoices {
		if inv.ClientID == clientID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memInvoiceRepo) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.invoices {
		if inv.Status == domain.InvoiceStatusPending && inv.DueDate.Before(cutoff) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memInvoiceRepo) ExistsForSubscriptionBetween(ctx context.Context, subscriptionID string, from, to time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.SubscriptionID == subscriptionID && !inv.DueDate.Before(from) && inv.DueDate.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memInvoiceRepo) SetGatewayData(ctx context.Context, id, providerID, paymentURL, paymentCode string, details json.RawMessage, publicLink string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.ProviderID = providerID
	inv.PaymentURL = paymentURL
	inv.PaymentCode = paymentCode
	inv.PaymentDetails = details
	inv.PublicLink = publicLink
	return nil
}

func (r *memInvoiceRepo) ApplyStatus(ctx context.Context, id, status string, paidAt *time.Time) error {
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

func (r *memInvoiceRepo) AppendNotifications(ctx context.Context, id string, entries []domain.NotificationRecord, markSent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Notifications = append(inv.Notifications, entries...)
	if markSent {
		inv.Sent = true
	}
	return nil
}

func (r *memInvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[invoice.ID]; !ok {
		return domain.ErrNotFound
	}
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *memInvoiceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.invoices, id)
	return nil
}

// memClientRepo is an in-memory domain.ClientRepository
type memClientRepo struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
}

func newMemClientRepo(clients ...*domain.Client) *memClientRepo {
	r := &memClientRepo{clients: map[string]*domain.Client{}}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

func (r *memClientRepo) Create(ctx context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
	return nil
}

func (r *memClientRepo) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *memClientRepo) ListActive(ctx context.Context) ([]*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Client
	for _, c := range r.clients {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memClientRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Client
	for _, id := range ids {
		if c, ok := r.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memClientRepo) Update(ctx context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
	return nil
}

func (r *memClientRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	return nil
}

// fakeMessenger scripts a whatsapp.Messenger for dispatch tests
type fakeMessenger struct {
	mu      sync.Mutex
	ready   bool
	sendErr error
	sent    []string // phone numbers in send order
	texts   []string
}

func (f *fakeMessenger) Status(ctx context.Context) whatsapp.StatusInfo {
	state := whatsapp.StateDisconnected
	if f.ready {
		state = whatsapp.StateReady
	}
	return whatsapp.StatusInfo{State: state, Ready: f.ready}
}

func (f *fakeMessenger) QRCode(ctx context.Context) (string, error) { return "", nil }

func (f *fakeMessenger) Reconnect(ctx context.Context) whatsapp.ReconnectResult {
	return whatsapp.ReconnectResult{Success: true}
}

func (f *fakeMessenger) SendText(ctx context.Context, phone, text string) (whatsapp.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return whatsapp.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, phone)
	f.texts = append(f.texts, text)
	return whatsapp.SendResult{Success: true, MessageID: "msg-1"}, nil
}

func (f *fakeMessenger) SendMedia(ctx context.Context, phone, caption string, media whatsapp.Media) (whatsapp.SendResult, error) {
	return f.SendText(ctx, phone, caption)
}

// fakeMailer scripts the mail.Sender
type fakeMailer struct {
	mu       sync.Mutex
	sendErr  error
	sent     []string
	subjects []string
	bodies   []string
}

func (f *fakeMailer) Send(to, subject, htmlBody string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, to)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, htmlBody)
	return "<mail-1@test>", nil
}

// fakeMediaStore records staged and deleted media keys
type fakeMediaStore struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (f *fakeMediaStore) Upload(ctx context.Context, file []byte, filename string, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, filename)
	return "http://media.test/" + filename, nil
}

func (f *fakeMediaStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}
