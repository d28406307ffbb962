package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// Evolution drives a hosted messaging instance over its REST API instead of
// owning a local session. State is whatever the instance reports on each poll.
type Evolution struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

func NewEvolution(baseURL, apiKey, instance string) *Evolution {
	return &Evolution{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		instance:   instance,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Evolution) Status(ctx context.Context) StatusInfo {
	status, body, err := e.do(ctx, http.MethodGet, "/instance/connectionState/"+e.instance, nil)
	if err != nil {
		return StatusInfo{State: StateInitializing, Message: statusMessage(StateInitializing)}
	}
	if status == http.StatusNotFound {
		return StatusInfo{State: StateDisconnected, Message: statusMessage(StateDisconnected)}
	}
	var resp struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusInfo{State: StateError, Message: statusMessage(StateError)}
	}
	switch resp.Instance.State {
	case "open":
		return StatusInfo{State: StateReady, Ready: true, Identity: e.instance, Message: statusMessage(StateReady)}
	case "connecting":
		return StatusInfo{State: StateQRCode, HasQR: true, Message: statusMessage(StateQRCode)}
	default:
		return StatusInfo{State: StateDisconnected, Message: statusMessage(StateDisconnected)}
	}
}

// QRCode fetches the pairing image from the instance. A missing instance is
// created on the spot; a 403 on creation means a zombie registration is
// holding the name, which gets deleted and recreated.
func (e *Evolution) QRCode(ctx context.Context) (string, error) {
	status, body, err := e.do(ctx, http.MethodGet, "/instance/connect/"+e.instance, nil)
	if err != nil {
		return "", fmt.Errorf("obter QR Code: %w", err)
	}
	if status == http.StatusNotFound {
		if err := e.createInstance(ctx); err != nil {
			return "", err
		}
		// the freshly created instance needs a moment before it can pair
		return "", nil
	}
	if status >= 400 {
		return "", fmt.Errorf("obter QR Code: status %d", status)
	}
	var resp struct {
		Base64 string `json:"base64"`
		QRCode struct {
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decodificar QR Code: %w", err)
	}
	image := resp.Base64
	if image == "" {
		image = resp.QRCode.Base64
	}
	if image == "" {
		return "", nil
	}
	if !strings.HasPrefix(image, "data:") {
		image = "data:image/png;base64," + image
	}
	return image, nil
}

func (e *Evolution) Reconnect(ctx context.Context) ReconnectResult {
	status, _, err := e.do(ctx, http.MethodPut, "/instance/restart/"+e.instance, nil)
	if err != nil {
		return ReconnectResult{Success: false, Message: fmt.Sprintf("Falha ao reiniciar instância: %v", err)}
	}
	if status == http.StatusNotFound {
		if err := e.createInstance(ctx); err != nil {
			return ReconnectResult{Success: false, Message: fmt.Sprintf("Falha ao criar instância: %v", err)}
		}
		return ReconnectResult{Success: true, Message: "Instância criada, aguardando pareamento"}
	}
	if status >= 400 {
		return ReconnectResult{Success: false, Message: fmt.Sprintf("Falha ao reiniciar instância: status %d", status)}
	}
	return ReconnectResult{Success: true, Message: "Reconexão iniciada"}
}

func (e *Evolution) SendText(ctx context.Context, phone, text string) (SendResult, error) {
	formatted, err := FormatPhone(phone)
	if err != nil {
		return SendResult{}, err
	}
	payload := map[string]interface{}{
		"number": formatted,
		"text":   text,
	}
	status, body, err := e.do(ctx, http.MethodPost, "/message/sendText/"+e.instance, payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("enviar mensagem: %w", err)
	}
	if status >= 400 {
		return SendResult{}, fmt.Errorf("enviar mensagem para %s: status %d", formatted, status)
	}
	return SendResult{Success: true, MessageID: extractMessageID(body)}, nil
}

func (e *Evolution) SendMedia(ctx context.Context, phone, caption string, media Media) (SendResult, error) {
	formatted, err := FormatPhone(phone)
	if err != nil {
		return SendResult{}, err
	}
	mediaType := "document"
	if strings.HasPrefix(media.MimeType, "image/") {
		mediaType = "image"
	}
	payload := map[string]interface{}{
		"number":    formatted,
		"mediatype": mediaType,
		"mimetype":  media.MimeType,
		"media":     base64.StdEncoding.EncodeToString(media.Data),
		"caption":   caption,
		"fileName":  media.Filename,
	}
	status, body, err := e.do(ctx, http.MethodPost, "/message/sendMedia/"+e.instance, payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("enviar mídia: %w", err)
	}
	if status >= 400 {
		return SendResult{}, fmt.Errorf("enviar mídia para %s: status %d", formatted, status)
	}
	return SendResult{Success: true, MessageID: extractMessageID(body)}, nil
}

func (e *Evolution) createInstance(ctx context.Context) error {
	log.Printf("[WhatsApp] criando instância %s", e.instance)
	payload := map[string]interface{}{
		"instanceName": e.instance,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}
	status, _, err := e.do(ctx, http.MethodPost, "/instance/create", payload)
	if err != nil {
		return fmt.Errorf("criar instância: %w", err)
	}
	if status == http.StatusForbidden {
		// name held by a zombie registration: delete and recreate
		log.Printf("[WhatsApp] instância %s em estado zumbi, recriando", e.instance)
		if _, _, err := e.do(ctx, http.MethodDelete, "/instance/delete/"+e.instance, nil); err != nil {
			return fmt.Errorf("remover instância zumbi: %w", err)
		}
		status, _, err = e.do(ctx, http.MethodPost, "/instance/create", payload)
		if err != nil {
			return fmt.Errorf("recriar instância: %w", err)
		}
	}
	if status >= 400 {
		return fmt.Errorf("criar instância: status %d", status)
	}
	return nil
}

func (e *Evolution) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("apikey", e.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%v: %w", err, domain.ErrTransportUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func extractMessageID(body []byte) string {
	var resp struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Key.ID
}
