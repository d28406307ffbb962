// Package whatsapp owns the messaging session used for chat notifications:
// either a locally-owned persistent session (Manager) or a hosted API
// instance (Evolution). Both satisfy Messenger.
package whatsapp

import (
	"context"

	"github.com/ibrasoft/cobranca/internal/qrcode"
)

// Session states
const (
	StateUninitialized = "uninitialized"
	StateInitializing  = "initializing"
	StateQRCode        = "qr_code"
	StateAuthenticated = "authenticated"
	StateReady         = "ready"
	StateDisconnected  = "disconnected"
	StateAuthFailure   = "auth_failure"
	StateError         = "error"
	StateDisabled      = "disabled"
)

// StatusInfo is a non-blocking snapshot of the session
type StatusInfo struct {
	State    string `json:"status"`
	Ready    bool   `json:"ready"`
	HasQR    bool   `json:"hasQR"`
	Identity string `json:"info,omitempty"`
	Message  string `json:"statusMessage"`
}

// SendResult reports a message send
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
}

// ReconnectResult reports a forced reconnection attempt
type ReconnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Media is an attachment sent alongside a chat message
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// Messenger is the public contract of a messaging session. Implementations
// never panic out of these methods; Status never blocks on the network beyond
// a single poll and never fails.
type Messenger interface {
	Status(ctx context.Context) StatusInfo
	// QRCode renders the pending credential challenge as a data-URI image,
	// or returns empty when none is pending.
	QRCode(ctx context.Context) (string, error)
	// Reconnect tears down the current session and restarts initialization.
	// Safe to call concurrently; an in-flight reconnect is not interrupted.
	Reconnect(ctx context.Context) ReconnectResult
	SendText(ctx context.Context, phone, text string) (SendResult, error)
	SendMedia(ctx context.Context, phone, caption string, media Media) (SendResult, error)
}

// renderQR turns a raw credential payload into a data-URI PNG
func renderQR(payload string) (string, error) {
	return qrcode.DataURL(payload)
}

// statusMessage translates a state into the operator-facing description
func statusMessage(state string) string {
	switch state {
	case StateInitializing:
		return "Inicializando WhatsApp..."
	case StateQRCode:
		return "Aguardando leitura do QR Code"
	case StateAuthenticated:
		return "WhatsApp autenticado com sucesso"
	case StateReady:
		return "WhatsApp conectado e pronto para uso"
	case StateDisconnected:
		return "WhatsApp desconectado"
	case StateAuthFailure:
		return "Falha na autenticação do WhatsApp"
	case StateError:
		return "Erro na inicialização do WhatsApp"
	case StateDisabled:
		return "WhatsApp desativado"
	default:
		return "Status desconhecido"
	}
}
