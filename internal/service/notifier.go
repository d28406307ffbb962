package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/infrastructure/mail"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
)

// ChannelResult reports one channel's outcome inside a dispatch
type ChannelResult struct {
	Success bool   `json:"success"`
	Manual  bool   `json:"manual,omitempty"`
	Message string `json:"messageId,omitempty"`
	Error   string `json:"error,omitempty"`
	// PreparedMessage carries the composed text when automatic delivery was
	// impossible, so an operator can send it by hand.
	PreparedMessage string `json:"preparedMessage,omitempty"`
}

// DispatchResult aggregates per-channel outcomes. A dispatch as a whole
// never fails: every failure is folded into its channel result.
type DispatchResult struct {
	Email    *ChannelResult `json:"email,omitempty"`
	WhatsApp *ChannelResult `json:"whatsapp,omitempty"`
}

// AnySent reports whether at least one channel delivered
func (r DispatchResult) AnySent() bool {
	return (r.Email != nil && r.Email.Success) || (r.WhatsApp != nil && r.WhatsApp.Success)
}

// DispatchOptions selects which channels a dispatch may use
type DispatchOptions struct {
	Email    bool
	WhatsApp bool
}

// AllChannels is the default selection: try everything the client has an
// address for.
func AllChannels() DispatchOptions {
	return DispatchOptions{Email: true, WhatsApp: true}
}

// NotifierConfig carries the dispatch settings
type NotifierConfig struct {
	WhatsAppEnabled bool
	FallbackPixKey  string
	FromName        string
}

// Notifier sends invoice notifications over email and chat, records every
// attempt on the invoice's audit trail and falls back to operator-prepared
// messages when no automatic channel can deliver.
type Notifier struct {
	invoices  domain.InvoiceRepository
	mailer    mail.Sender
	messenger whatsapp.Messenger
	cfg       NotifierConfig
}

func NewNotifier(invoices domain.InvoiceRepository, mailer mail.Sender, messenger whatsapp.Messenger, cfg NotifierConfig) *Notifier {
	return &Notifier{
		invoices:  invoices,
		mailer:    mailer,
		messenger: messenger,
		cfg:       cfg,
	}
}

// Dispatch sends the invoice notification on the selected channels the
// client has an address for. Channels run concurrently; each outcome lands
// on the invoice audit trail. Dispatch itself never fails.
func (n *Notifier) Dispatch(ctx context.Context, invoice *domain.Invoice, client *domain.Client, opts DispatchOptions) DispatchResult {
	var result DispatchResult
	g, gctx := errgroup.WithContext(ctx)

	if opts.Email && client.Email != "" && n.mailer != nil {
		g.Go(func() error {
			r := n.sendEmail(gctx, invoice, client)
			result.Email = &r
			return nil
		})
	}
	if opts.WhatsApp && client.Phone != "" {
		g.Go(func() error {
			r := n.sendChat(gctx, invoice, client, n.chatMessage(invoice, client))
			result.WhatsApp = &r
			return nil
		})
	}
	_ = g.Wait()

	if result.Email == nil && result.WhatsApp == nil && (opts.Email || opts.WhatsApp) {
		// nowhere to deliver: hand the composed text to the operator
		result.WhatsApp = &ChannelResult{
			Manual:          true,
			Error:           "cliente sem email e sem telefone",
			PreparedMessage: n.chatMessage(invoice, client),
		}
	}

	n.recordDispatch(ctx, invoice.ID, result)
	return result
}

// SendPaymentConfirmation tells the client their payment was registered
func (n *Notifier) SendPaymentConfirmation(ctx context.Context, invoice *domain.Invoice, client *domain.Client) DispatchResult {
	var result DispatchResult

	if client.Phone != "" {
		r := n.sendChat(ctx, invoice, client, n.confirmationMessage(invoice, client))
		result.WhatsApp = &r
	}
	if client.Email != "" && n.mailer != nil {
		subject := fmt.Sprintf("Pagamento confirmado - %s", invoiceTitle(invoice))
		r := n.deliverEmail(client.Email, subject, n.confirmationEmailBody(invoice, client))
		result.Email = &r
	}

	n.recordDispatch(ctx, invoice.ID, result)
	return result
}

func (n *Notifier) sendEmail(ctx context.Context, invoice *domain.Invoice, client *domain.Client) ChannelResult {
	subject := fmt.Sprintf("Fatura disponível - %s", invoiceTitle(invoice))
	return n.deliverEmail(client.Email, subject, n.invoiceEmailBody(invoice, client))
}

func (n *Notifier) deliverEmail(to, subject, body string) ChannelResult {
	messageID, err := n.mailer.Send(to, subject, body)
	if err != nil {
		log.Printf("[Notifier] email para %s falhou: %v", to, err)
		return ChannelResult{Error: err.Error()}
	}
	return ChannelResult{Success: true, Message: messageID}
}

// sendChat delivers text over the messaging session. When no session can
// deliver, the composed message comes back as a manual fallback instead of
// an error.
func (n *Notifier) sendChat(ctx context.Context, invoice *domain.Invoice, client *domain.Client, text string) ChannelResult {
	if !n.cfg.WhatsAppEnabled || n.messenger == nil {
		return ChannelResult{Manual: true, Error: "WhatsApp desativado", PreparedMessage: text}
	}

	sent, err := n.messenger.SendText(ctx, client.Phone, text)
	if err != nil {
		log.Printf("[Notifier] WhatsApp para %s falhou: %v", client.Phone, err)
		return ChannelResult{Manual: true, Error: err.Error(), PreparedMessage: text}
	}
	return ChannelResult{Success: true, Message: sent.MessageID}
}

// recordDispatch appends this dispatch's outcomes to the invoice audit trail
func (n *Notifier) recordDispatch(ctx context.Context, invoiceID string, result DispatchResult) {
	now := time.Now().UTC()
	var entries []domain.NotificationRecord

	if result.Email != nil {
		entries = append(entries, channelRecord(domain.ChannelEmail, *result.Email, now))
	}
	if result.WhatsApp != nil {
		entries = append(entries, channelRecord(domain.ChannelWhatsApp, *result.WhatsApp, now))
	}
	if len(entries) == 0 {
		return
	}

	if err := n.invoices.AppendNotifications(ctx, invoiceID, entries, result.AnySent()); err != nil {
		log.Printf("[Notifier] failed to record dispatch on invoice %s: %v", invoiceID, err)
	}
}

func channelRecord(channel string, r ChannelResult, at time.Time) domain.NotificationRecord {
	record := domain.NotificationRecord{
		Channel: channel,
		SentAt:  at,
		Status:  "failed",
		Error:   r.Error,
	}
	if r.Success {
		record.Status = "sent"
		record.Meta = map[string]interface{}{"messageId": r.Message}
	} else if r.Manual {
		record.Status = "manual"
	}
	return record
}

// chatMessage composes the invoice notification for chat delivery
func (n *Notifier) chatMessage(invoice *domain.Invoice, client *domain.Client) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Olá *%s*! 👋\n\n", client.Name)
	fmt.Fprintf(&b, "Sua fatura *%s* no valor de *%s* vence em *%s*.\n\n",
		invoiceTitle(invoice), FormatBRL(invoice.Amount), FormatDate(invoice.DueDate))

	if invoice.PublicLink != "" {
		fmt.Fprintf(&b, "Acesse para pagar:\n%s\n\n", invoice.PublicLink)
	} else if invoice.PaymentCode != "" && invoice.PaymentMethod == domain.PaymentMethodPix {
		fmt.Fprintf(&b, "PIX copia e cola:\n%s\n\n", invoice.PaymentCode)
	} else if invoice.PaymentURL != "" {
		fmt.Fprintf(&b, "Boleto:\n%s\n\n", invoice.PaymentURL)
	} else if n.cfg.FallbackPixKey != "" {
		fmt.Fprintf(&b, "Chave PIX: %s\n\n", n.cfg.FallbackPixKey)
	}

	b.WriteString("Qualquer dúvida, estamos à disposição!")
	return b.String()
}

func (n *Notifier) confirmationMessage(invoice *domain.Invoice, client *domain.Client) string {
	return fmt.Sprintf(
		"Olá *%s*! ✅\n\nRecebemos o pagamento da fatura *%s* no valor de *%s*.\n\nObrigado!",
		client.Name, invoiceTitle(invoice), FormatBRL(invoice.Amount))
}

func (n *Notifier) invoiceEmailBody(invoice *domain.Invoice, client *domain.Client) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">`)
	fmt.Fprintf(&b, `<h2 style="color:#2c3e50">Olá, %s!</h2>`, client.Name)
	fmt.Fprintf(&b, `<p>Sua fatura <strong>%s</strong> está disponível.</p>`, invoiceTitle(invoice))
	b.WriteString(`<table style="width:100%;border-collapse:collapse;margin:16px 0">`)
	fmt.Fprintf(&b, `<tr><td style="padding:8px;border:1px solid #ddd">Valor</td><td style="padding:8px;border:1px solid #ddd"><strong>%s</strong></td></tr>`, FormatBRL(invoice.Amount))
	fmt.Fprintf(&b, `<tr><td style="padding:8px;border:1px solid #ddd">Vencimento</td><td style="padding:8px;border:1px solid #ddd">%s</td></tr>`, FormatDate(invoice.DueDate))
	b.WriteString(`</table>`)
	if invoice.PublicLink != "" {
		fmt.Fprintf(&b, `<p style="text-align:center;margin:24px 0"><a href="%s" style="background:#27ae60;color:#fff;padding:12px 32px;text-decoration:none;border-radius:4px">Pagar agora</a></p>`, invoice.PublicLink)
	}
	if invoice.PaymentMethod == domain.PaymentMethodPix && invoice.PaymentCode != "" {
		fmt.Fprintf(&b, `<p>PIX copia e cola:</p><p style="word-break:break-all;background:#f4f4f4;padding:8px;font-family:monospace">%s</p>`, invoice.PaymentCode)
	}
	if invoice.PaymentMethod == domain.PaymentMethodBoleto && invoice.PaymentCode != "" {
		fmt.Fprintf(&b, `<p>Linha digitável:</p><p style="word-break:break-all;background:#f4f4f4;padding:8px;font-family:monospace">%s</p>`, invoice.PaymentCode)
	}
	fmt.Fprintf(&b, `<p style="color:#888;font-size:12px;margin-top:32px">%s</p>`, n.cfg.FromName)
	b.WriteString(`</div>`)
	return b.String()
}

func (n *Notifier) confirmationEmailBody(invoice *domain.Invoice, client *domain.Client) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">`)
	fmt.Fprintf(&b, `<h2 style="color:#27ae60">Pagamento confirmado ✅</h2>`)
	fmt.Fprintf(&b, `<p>Olá, %s! Recebemos o pagamento da fatura <strong>%s</strong> no valor de <strong>%s</strong>.</p>`,
		client.Name, invoiceTitle(invoice), FormatBRL(invoice.Amount))
	fmt.Fprintf(&b, `<p style="color:#888;font-size:12px;margin-top:32px">%s</p>`, n.cfg.FromName)
	b.WriteString(`</div>`)
	return b.String()
}

func invoiceTitle(invoice *domain.Invoice) string {
	if invoice.Title != "" {
		return invoice.Title
	}
	return "Cobrança"
}
