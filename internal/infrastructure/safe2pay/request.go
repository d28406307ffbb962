package safe2pay

import (
	"strings"
	"time"
	"unicode"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/shopspring/decimal"
)

// Safe2Pay payment method codes
const (
	methodCodeBoleto = "1"
	methodCodePix    = "6"
)

// Customer is the gateway's customer schema
type Customer struct {
	Name     string  `json:"Name"`
	Identity string  `json:"Identity"`
	Email    string  `json:"Email"`
	Phone    string  `json:"Phone"`
	Address  Address `json:"Address"`
}

// Address is the gateway's address schema
type Address struct {
	ZipCode       string `json:"ZipCode"`
	Street        string `json:"Street"`
	Number        string `json:"Number"`
	Complement    string `json:"Complement"`
	District      string `json:"District"`
	StateInitials string `json:"StateInitials"`
	CityName      string `json:"CityName"`
	CountryName   string `json:"CountryName"`
}

// Product is one line item of a charge
type Product struct {
	Code        string  `json:"Code"`
	Description string  `json:"Description"`
	UnitPrice   float64 `json:"UnitPrice"`
	Quantity    int     `json:"Quantity"`
}

// PaymentObject carries the boleto-specific billing rules
type PaymentObject struct {
	DueDate                string   `json:"DueDate"`
	Instruction            string   `json:"Instruction"`
	PenaltyAmount          float64  `json:"PenaltyAmount"`
	InterestAmount         float64  `json:"InterestAmount"`
	CancelAfterDue         bool     `json:"CancelAfterDue"`
	IsEnablePartialPayment bool     `json:"IsEnablePartialPayment"`
	DaysBeforeCancel       int      `json:"DaysBeforeCancel"`
	Messages               []string `json:"Messages"`
}

// ChargeRequest is the outbound charge-creation payload
type ChargeRequest struct {
	IsSandbox     bool           `json:"IsSandbox"`
	Application   string         `json:"Application"`
	Vendor        string         `json:"Vendor"`
	CallbackUrl   string         `json:"CallbackUrl,omitempty"`
	PaymentMethod string         `json:"PaymentMethod"`
	Customer      Customer       `json:"Customer"`
	Products      []Product      `json:"Products"`
	Reference     string         `json:"Reference"`
	PaymentObject *PaymentObject `json:"PaymentObject,omitempty"`
}

// BuildChargeRequest maps a client and charge data to the gateway schema.
// Pure data shaping, no I/O.
func BuildChargeRequest(cfg Config, client *domain.Client, title string, amount decimal.Decimal, dueDate time.Time, paymentMethod, reference string) *ChargeRequest {
	methodCode := methodCodeBoleto
	if paymentMethod == domain.PaymentMethodPix {
		methodCode = methodCodePix
	}

	description := title
	if description == "" {
		description = "Cobrança avulsa de " + client.Name
	}

	req := &ChargeRequest{
		IsSandbox:     cfg.Sandbox,
		Application:   "Pagamento de Serviço",
		Vendor:        client.Name,
		CallbackUrl:   cfg.CallbackURL,
		PaymentMethod: methodCode,
		Customer: Customer{
			Name:     client.Name,
			Identity: onlyDigits(client.Document),
			Email:    client.Email,
			Phone:    stripCountryCode(onlyDigits(client.Phone)),
			Address: Address{
				ZipCode:       onlyDigits(client.Address.ZipCode),
				Street:        client.Address.Street,
				Number:        client.Address.Number,
				Complement:    client.Address.Complement,
				District:      client.Address.District,
				StateInitials: client.Address.State,
				CityName:      client.Address.City,
				CountryName:   "Brasil",
			},
		},
		Products: []Product{
			{
				Code:        reference,
				Description: description,
				UnitPrice:   amount.InexactFloat64(),
				Quantity:    1,
			},
		},
		Reference: reference,
	}

	if paymentMethod == domain.PaymentMethodBoleto {
		req.PaymentObject = &PaymentObject{
			DueDate:                dueDate.Format("2006-01-02"),
			Instruction:            "Não receber após o vencimento",
			PenaltyAmount:          cfg.BoletoFinePercent,
			InterestAmount:         cfg.BoletoInterestMonthlyPercent,
			CancelAfterDue:         false,
			IsEnablePartialPayment: false,
			DaysBeforeCancel:       0,
			Messages:               []string{"Em caso de dúvidas, entre em contato conosco"},
		}
	}

	return req
}

// onlyDigits strips every non-digit rune
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripCountryCode drops a leading Brazilian country code from an
// already-digit-only phone number.
func stripCountryCode(phone string) string {
	if strings.HasPrefix(phone, "55") && (len(phone) == 12 || len(phone) == 13) {
		return phone[2:]
	}
	return phone
}
