// Package worker runs the recurring billing jobs: the daily subscription
// billing run and the overdue sweep.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/service"
)

// BillingLock guards the daily run against double execution across restarts
type BillingLock interface {
	AcquireBillingRun(ctx context.Context, day string, ttl time.Duration) (bool, error)
	ReleaseBillingRun(ctx context.Context, day string) error
}

// Scheduler wakes up periodically, bills subscriptions whose billing day is
// today and rolls pending invoices past their due date into overdue.
type Scheduler struct {
	subscriptions domain.SubscriptionRepository
	invoices      domain.InvoiceRepository
	clients       domain.ClientRepository
	charges       *service.ChargeService
	notifier      *service.Notifier
	lock          BillingLock

	interval time.Duration
	now      func() time.Time
}

func NewScheduler(
	subscriptions domain.SubscriptionRepository,
	invoices domain.InvoiceRepository,
	clients domain.ClientRepository,
	charges *service.ChargeService,
	notifier *service.Notifier,
	lock BillingLock,
) *Scheduler {
	return &Scheduler{
		subscriptions: subscriptions,
		invoices:      invoices,
		clients:       clients,
		charges:       charges,
		notifier:      notifier,
		lock:          lock,
		interval:      time.Hour,
		now:           time.Now,
	}
}

// Start runs the scheduler loop until ctx is canceled
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	if err := s.RunBillingDay(ctx, now); err != nil {
		log.Printf("[Scheduler] billing run failed: %v", err)
	}
	if err := s.SweepOverdue(ctx, now); err != nil {
		log.Printf("[Scheduler] overdue sweep failed: %v", err)
	}
}

// RunBillingDay bills every active subscription whose billing day is today
// and that has no invoice in the current month. The Redis day lock makes the
// run happen at most once per day even across restarts; a failing recipient
// never stops the run.
func (s *Scheduler) RunBillingDay(ctx context.Context, now time.Time) error {
	day := now.Format("2006-01-02")
	acquired, err := s.lock.AcquireBillingRun(ctx, day, 25*time.Hour)
	if err != nil {
		return fmt.Errorf("acquire billing lock: %w", err)
	}
	if !acquired {
		return nil
	}

	subs, err := s.subscriptions.ListActiveByBillingDay(ctx, now.Day())
	if err != nil {
		// let a retry happen: the run did no work yet
		if relErr := s.lock.ReleaseBillingRun(ctx, day); relErr != nil {
			log.Printf("[Scheduler] failed to release billing lock: %v", relErr)
		}
		return fmt.Errorf("list subscriptions for day %d: %w", now.Day(), err)
	}

	log.Printf("[Scheduler] billing run %s: %d subscriptions", day, len(subs))
	monthStart, monthEnd := domain.MonthWindow(now)

	for _, sub := range subs {
		exists, err := s.invoices.ExistsForSubscriptionBetween(ctx, sub.ID, monthStart, monthEnd)
		if err != nil {
			log.Printf("[Scheduler] subscription %s: existence check failed: %v", sub.ID, err)
			continue
		}
		if exists {
			continue
		}
		if err := s.billSubscription(ctx, sub, now); err != nil {
			log.Printf("[Scheduler] subscription %s: billing failed: %v", sub.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) billSubscription(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	client, err := s.clients.GetByID(ctx, sub.ClientID)
	if err != nil {
		return fmt.Errorf("load client %s: %w", sub.ClientID, err)
	}

	invoice := &domain.Invoice{
		ClientID:       client.ID,
		SubscriptionID: sub.ID,
		Title:          sub.Name,
		Amount:         sub.Amount,
		DueDate:        domain.NextDueDate(sub.BillingDay, now),
		Status:         domain.InvoiceStatusPending,
		PaymentMethod:  sub.PaymentMethod,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	if err := s.charges.Issue(ctx, invoice, client); err != nil {
		// Issue already rolled the invoice back
		return err
	}

	s.notifier.Dispatch(ctx, invoice, client, service.AllChannels())

	next := domain.NextDueDate(sub.BillingDay, now.AddDate(0, 1, 0))
	sub.NextBillingDate = &next
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		log.Printf("[Scheduler] subscription %s: failed to advance next billing date: %v", sub.ID, err)
	}

	log.Printf("[Scheduler] subscription %s billed: invoice %s due %s", sub.ID, invoice.ID, invoice.DueDate.Format("2006-01-02"))
	return nil
}

// SweepOverdue turns pending invoices past their due date into overdue
func (s *Scheduler) SweepOverdue(ctx context.Context, now time.Time) error {
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	pending, err := s.invoices.ListPendingDueBefore(ctx, startOfToday)
	if err != nil {
		return fmt.Errorf("list pending invoices: %w", err)
	}

	for _, invoice := range pending {
		if err := s.invoices.ApplyStatus(ctx, invoice.ID, domain.InvoiceStatusOverdue, nil); err != nil {
			log.Printf("[Scheduler] invoice %s: failed to mark overdue: %v", invoice.ID, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("[Scheduler] overdue sweep: %d invoices flipped", len(pending))
	}
	return nil
}
