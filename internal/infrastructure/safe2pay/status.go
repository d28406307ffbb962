package safe2pay

import "github.com/ibrasoft/cobranca/internal/domain"

// StatusInfo is the internal reading of a provider status code
type StatusInfo struct {
	Status      string
	Description string
}

// statusTable maps Safe2Pay transaction status codes to invoice states.
var statusTable = map[int]StatusInfo{
	1:  {domain.InvoiceStatusPending, "Pendente"},
	2:  {domain.InvoiceStatusPending, "Processando"},
	3:  {domain.InvoiceStatusPending, "Autorizado"},
	4:  {domain.InvoiceStatusPaid, "Disponível/Pago"},
	5:  {domain.InvoiceStatusPending, "Em disputa"},
	6:  {domain.InvoiceStatusCanceled, "Devolvido"},
	7:  {domain.InvoiceStatusPaid, "Baixado"},
	8:  {domain.InvoiceStatusCanceled, "Recusado"},
	11: {domain.InvoiceStatusCanceled, "Cancelado"},
	12: {domain.InvoiceStatusCanceled, "Estornado"},
	13: {domain.InvoiceStatusOverdue, "Vencido"},
	15: {domain.InvoiceStatusPending, "Em análise"},
}

// MapStatus translates a provider status code to the internal invoice state.
// Total: unknown codes map to pending.
func MapStatus(code int) StatusInfo {
	if info, ok := statusTable[code]; ok {
		return info
	}
	return StatusInfo{domain.InvoiceStatusPending, "Status desconhecido"}
}
