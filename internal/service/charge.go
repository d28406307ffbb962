package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
)

// Gateway is the slice of the payment provider the charge flow needs
type Gateway interface {
	CreatePayment(ctx context.Context, charge *safe2pay.ChargeRequest) (json.RawMessage, error)
	CancelPayment(ctx context.Context, providerID string) (json.RawMessage, error)
}

// ChargeService issues charges at the payment provider and binds the
// provider's response to the local invoice.
type ChargeService struct {
	invoices      domain.InvoiceRepository
	gateway       Gateway
	gatewayConfig safe2pay.Config
	publicBaseURL string
}

func NewChargeService(invoices domain.InvoiceRepository, gateway Gateway, gatewayConfig safe2pay.Config, publicBaseURL string) *ChargeService {
	return &ChargeService{
		invoices:      invoices,
		gateway:       gateway,
		gatewayConfig: gatewayConfig,
		publicBaseURL: publicBaseURL,
	}
}

// Issue registers the invoice's charge at the provider. On provider failure
// the invoice is removed again so a retry starts clean; no invoice is left
// half-issued.
func (s *ChargeService) Issue(ctx context.Context, invoice *domain.Invoice, client *domain.Client) error {
	charge := safe2pay.BuildChargeRequest(
		s.gatewayConfig,
		client,
		invoice.Title,
		invoice.Amount,
		invoice.DueDate,
		invoice.PaymentMethod,
		invoice.ID,
	)

	raw, err := s.gateway.CreatePayment(ctx, charge)
	if err != nil {
		log.Printf("[Charge] provider rejected invoice %s: %v", invoice.ID, err)
		if delErr := s.invoices.Delete(ctx, invoice.ID); delErr != nil {
			log.Printf("[Charge] failed to roll back invoice %s: %v", invoice.ID, delErr)
		}
		return fmt.Errorf("create payment for invoice %s: %w", invoice.ID, err)
	}

	providerID := safe2pay.ExtractTransactionID(raw)
	canonical := safe2pay.Normalize(raw, "", "", invoice.PaymentMethod)

	var paymentURL, paymentCode string
	switch invoice.PaymentMethod {
	case domain.PaymentMethodBoleto:
		paymentURL = canonical.BoletoURL
		paymentCode = canonical.BoletoCode
	default:
		paymentURL = canonical.PixQrCodeImage
		paymentCode = canonical.PixCopyPaste
	}

	publicLink := fmt.Sprintf("%s/public/invoice/%s", s.publicBaseURL, invoice.ID)

	if err := s.invoices.SetGatewayData(ctx, invoice.ID, providerID, paymentURL, paymentCode, raw, publicLink); err != nil {
		return fmt.Errorf("persist gateway data for invoice %s: %w", invoice.ID, err)
	}

	invoice.ProviderID = providerID
	invoice.PaymentURL = paymentURL
	invoice.PaymentCode = paymentCode
	invoice.PaymentDetails = raw
	invoice.PublicLink = publicLink

	log.Printf("[Charge] invoice %s issued (provider id %s, method %s)", invoice.ID, providerID, invoice.PaymentMethod)
	return nil
}

// Cancel voids the charge at the provider and marks the invoice canceled
func (s *ChargeService) Cancel(ctx context.Context, invoice *domain.Invoice) error {
	if invoice.ProviderID != "" {
		if _, err := s.gateway.CancelPayment(ctx, invoice.ProviderID); err != nil {
			return fmt.Errorf("cancel payment %s: %w", invoice.ProviderID, err)
		}
	}
	if err := s.invoices.ApplyStatus(ctx, invoice.ID, domain.InvoiceStatusCanceled, nil); err != nil {
		return fmt.Errorf("mark invoice %s canceled: %w", invoice.ID, err)
	}
	return nil
}
