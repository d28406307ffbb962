package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
	"github.com/ibrasoft/cobranca/internal/service"
)

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	nextID   int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: map[string]*domain.Invoice{}}
}

func (r *memInvoiceRepo) all() []*domain.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.invoices {
		out = append(out, inv)
	}
	return out
}

func (r *memInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if invoice.ID == "" {
		invoice.ID = "inv-" + string(rune('a'+r.nextID))
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
	return nil, nil
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
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *memInvoiceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invoices, id)
	return nil
}

type memClientRepo struct {
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
	r.clients[client.ID] = client
	return nil
}

func (r *memClientRepo) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *memClientRepo) ListActive(ctx context.Context) ([]*domain.Client, error)             { return nil, nil }
func (r *memClientRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Client, error) { return nil, nil }
func (r *memClientRepo) Update(ctx context.Context, client *domain.Client) error               { return nil }
func (r *memClientRepo) Delete(ctx context.Context, id string) error                           { return nil }

type memSubscriptionRepo struct {
	subs    []*domain.Subscription
	listErr error
	updated []*domain.Subscription
}

func (r *memSubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error { return nil }

func (r *memSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (r *memSubscriptionRepo) ListActiveByBillingDay(ctx context.Context, day int) ([]*domain.Subscription, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Subscription
	for _, sub := range r.subs {
		if sub.Active && sub.BillingDay == day {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	r.updated = append(r.updated, sub)
	return nil
}

func (r *memSubscriptionRepo) Delete(ctx context.Context, id string) error { return nil }

type memLock struct {
	mu       sync.Mutex
	held     map[string]bool
	refuse   bool
	released []string
}

func newMemLock() *memLock { return &memLock{held: map[string]bool{}} }

func (l *memLock) AcquireBillingRun(ctx context.Context, day string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refuse || l.held[day] {
		return false, nil
	}
	l.held[day] = true
	return true, nil
}

func (l *memLock) ReleaseBillingRun(ctx context.Context, day string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, day)
	l.released = append(l.released, day)
	return nil
}

type fakeGateway struct {
	calls int
	err   error
}

func (g *fakeGateway) CreatePayment(ctx context.Context, charge *safe2pay.ChargeRequest) (json.RawMessage, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(`{"IdTransaction":778899,"ResponseDetail":{"Key":"000201pix-payload"}}`), nil
}

func (g *fakeGateway) CancelPayment(ctx context.Context, providerID string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMailer) Send(to, subject, htmlBody string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return "<mail-1@test>", nil
}

type fixture struct {
	scheduler *Scheduler
	invoices  *memInvoiceRepo
	subs      *memSubscriptionRepo
	lock      *memLock
	gateway   *fakeGateway
	mailer    *fakeMailer
}

func newFixture(subs ...*domain.Subscription) *fixture {
	invoices := newMemInvoiceRepo()
	clients := newMemClientRepo(&domain.Client{
		ID:     "client-1",
		Name:   "Maria Silva",
		Email:  "maria@example.com",
		Active: true,
	})
	subRepo := &memSubscriptionRepo{subs: subs}
	lock := newMemLock()
	gateway := &fakeGateway{}
	mailer := &fakeMailer{}

	charges := service.NewChargeService(invoices, gateway, safe2pay.Config{}, "https://pay.example.com")
	notifier := service.NewNotifier(invoices, mailer, nil, service.NotifierConfig{FallbackPixKey: "pix@example.com"})

	return &fixture{
		scheduler: NewScheduler(subRepo, invoices, clients, charges, notifier, lock),
		invoices:  invoices,
		subs:      subRepo,
		lock:      lock,
		gateway:   gateway,
		mailer:    mailer,
	}
}

func testSubscription() *domain.Subscription {
	return &domain.Subscription{
		ID:            "sub-1",
		ClientID:      "client-1",
		Name:          "Mensalidade Contábil",
		Amount:        decimal.NewFromFloat(350),
		BillingDay:    15,
		PaymentMethod: domain.PaymentMethodPix,
		Active:        true,
	}
}

func TestBillingRunCreatesInvoice(t *testing.T) {
	f := newFixture(testSubscription())
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))

	all := f.invoices.all()
	require.Len(t, all, 1)
	inv := all[0]
	assert.Equal(t, "sub-1", inv.SubscriptionID)
	assert.Equal(t, "Mensalidade Contábil", inv.Title)
	assert.Equal(t, "778899", inv.ProviderID)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.True(t, inv.Sent, "dispatch outcome should be recorded on the invoice")
	assert.Equal(t, []string{"maria@example.com"}, f.mailer.sent)

	require.Len(t, f.subs.updated, 1)
	require.NotNil(t, f.subs.updated[0].NextBillingDate)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), *f.subs.updated[0].NextBillingDate)
}

func TestBillingRunSkipsAlreadyBilledSubscription(t *testing.T) {
	f := newFixture(testSubscription())
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.invoices.Create(context.Background(), &domain.Invoice{
		ID:             "inv-existing",
		ClientID:       "client-1",
		SubscriptionID: "sub-1",
		DueDate:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))

	assert.Len(t, f.invoices.all(), 1)
	assert.Zero(t, f.gateway.calls)
}

func TestBillingRunHonorsDayLock(t *testing.T) {
	f := newFixture(testSubscription())
	f.lock.refuse = true
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))
	assert.Empty(t, f.invoices.all())

	// second run on the same fixture after the lock was taken once
	f.lock.refuse = false
	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))
	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))
	assert.Len(t, f.invoices.all(), 1, "lock must keep the run once per day")
}

func TestBillingRunReleasesLockWhenListingFails(t *testing.T) {
	f := newFixture()
	f.subs.listErr = errors.New("mongo indisponível")
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	err := f.scheduler.RunBillingDay(context.Background(), now)
	require.Error(t, err)
	assert.Equal(t, []string{"2026-03-15"}, f.lock.released)
}

func TestBillingRunSurvivesProviderFailure(t *testing.T) {
	second := testSubscription()
	second.ID = "sub-2"
	f := newFixture(testSubscription(), second)
	f.gateway.err = errors.New("provider down")
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.scheduler.RunBillingDay(context.Background(), now))

	// both subscriptions were attempted, both invoices rolled back
	assert.Equal(t, 2, f.gateway.calls)
	assert.Empty(t, f.invoices.all())
}

func TestSweepOverdueFlipsPastDueInvoices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.invoices.Create(ctx, &domain.Invoice{
		ID:      "inv-late",
		DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, f.invoices.Create(ctx, &domain.Invoice{
		ID:      "inv-future",
		DueDate: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, f.scheduler.SweepOverdue(ctx, now))

	late, err := f.invoices.GetByID(ctx, "inv-late")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, late.Status)

	future, err := f.invoices.GetByID(ctx, "inv-future")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPending, future.Status)
}
