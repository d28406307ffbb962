package safe2pay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Config holds Safe2Pay API configuration
type Config struct {
	APIKey                       string
	BaseURL                      string // production or sandbox payment endpoint
	Sandbox                      bool
	CallbackURL                  string // webhook URL the gateway will notify
	BoletoFinePercent            float64
	BoletoInterestMonthlyPercent float64
}

// Client is the Safe2Pay API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Safe2Pay client
func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GatewayError carries the provider-supplied failure details so callers can
// surface them instead of a bare message.
type GatewayError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Provider   json.RawMessage // raw provider response body, may be nil
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("safe2pay %s failed: %s", e.Endpoint, e.Message)
}

// paymentEnvelope is the minimal typed view of a Safe2Pay response; the full
// body is kept raw because the detail shape varies per payment method.
type paymentEnvelope struct {
	HasError       bool            `json:"HasError"`
	Error          string          `json:"Error"`
	ErrorCode      string          `json:"ErrorCode"`
	ResponseDetail json.RawMessage `json:"ResponseDetail"`
}

// CreatePayment issues a charge and returns the raw provider response.
// The response is intentionally unparsed beyond error detection: the payload
// normalizer derives the canonical view from it and the raw blob is persisted
// on the invoice for audit.
func (c *Client) CreatePayment(ctx context.Context, charge *ChargeRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/Payment", charge)
}

// GetPayment fetches the current state of a charge at the provider
func (c *Client) GetPayment(ctx context.Context, providerID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/Payment/"+providerID, nil)
}

// CancelPayment cancels a charge at the provider
func (c *Client) CancelPayment(ctx context.Context, providerID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/Payment/"+providerID+"/Cancel", nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) (json.RawMessage, error) {
	url := c.config.BaseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	log.Printf("[Safe2Pay] %s %s (sandbox: %v)", method, url, c.config.Sandbox)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	log.Printf("[Safe2Pay] Response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Provider:   respBody,
		}
	}

	var envelope paymentEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, &GatewayError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to parse response: %v", err),
			Provider:   respBody,
		}
	}
	if envelope.HasError {
		msg := envelope.Error
		if msg == "" {
			msg = "unspecified provider error"
		}
		return nil, &GatewayError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Provider:   respBody,
		}
	}

	return respBody, nil
}

// ExtractTransactionID pulls the provider transaction id out of a raw charge
// response. Some responses carry it inside ResponseDetail, others at the
// root; both shapes occur in production, so the root is always the fallback.
func ExtractTransactionID(raw json.RawMessage) string {
	for _, obj := range []map[string]interface{}{detailObject(raw), rootObject(raw)} {
		for _, key := range []string{"IdTransaction", "idTransaction", "Id", "id"} {
			switch t := obj[key].(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return fmt.Sprintf("%.0f", t)
			}
		}
	}
	return ""
}
