package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
)

// MediaStore is the slice of the media repository the bulk sender needs
type MediaStore interface {
	Upload(ctx context.Context, file []byte, filename string, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// BulkRequest is one campaign: a message template sent to many clients,
// optionally with a shared media attachment.
type BulkRequest struct {
	ClientIDs []string
	Template  string
	Media     *whatsapp.Media
}

// BulkItemResult is the outcome for one recipient
type BulkItemResult struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// BulkResult summarizes a campaign
type BulkResult struct {
	Total   int              `json:"total"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Results []BulkItemResult `json:"results"`
}

// BulkSender walks a recipient list sending a templated chat message to
// each, pacing sends to stay under the provider's rate limits. A failed
// recipient never stops the batch.
type BulkSender struct {
	clients   domain.ClientRepository
	messenger whatsapp.Messenger
	media     MediaStore

	// sleep is the inter-send pacing, injectable for tests
	sleep func(time.Duration)
	pace  time.Duration
}

func NewBulkSender(clients domain.ClientRepository, messenger whatsapp.Messenger, media MediaStore) *BulkSender {
	return &BulkSender{
		clients:   clients,
		messenger: messenger,
		media:     media,
		sleep:     time.Sleep,
		pace:      time.Second,
	}
}

// Send runs the campaign. The shared media file, when present, is staged in
// the media store for traceability and removed after the batch completes.
func (s *BulkSender) Send(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if s.messenger == nil {
		return nil, domain.ErrNotReady
	}
	if status := s.messenger.Status(ctx); !status.Ready {
		return nil, fmt.Errorf("sessão não está pronta (%s): %w", status.State, domain.ErrNotReady)
	}

	recipients, err := s.clients.ListByIDs(ctx, req.ClientIDs)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	var mediaKey string
	if req.Media != nil && s.media != nil {
		mediaKey = fmt.Sprintf("bulk/%d-%s", time.Now().UnixMilli(), req.Media.Filename)
		if _, err := s.media.Upload(ctx, req.Media.Data, mediaKey, req.Media.MimeType); err != nil {
			log.Printf("[Bulk] failed to stage media %s: %v", mediaKey, err)
			mediaKey = ""
		}
	}
	defer func() {
		if mediaKey != "" {
			if err := s.media.Delete(context.WithoutCancel(ctx), mediaKey); err != nil {
				log.Printf("[Bulk] failed to clean up media %s: %v", mediaKey, err)
			}
		}
	}()

	result := &BulkResult{Total: len(recipients)}
	for i, client := range recipients {
		item := BulkItemResult{ClientID: client.ID, Name: client.Name, Phone: client.Phone}

		switch {
		case client.Phone == "":
			item.Error = "cliente sem telefone"
		default:
			text := RenderTemplate(req.Template, client)
			var sendErr error
			if req.Media != nil {
				_, sendErr = s.messenger.SendMedia(ctx, client.Phone, text, *req.Media)
			} else {
				_, sendErr = s.messenger.SendText(ctx, client.Phone, text)
			}
			if sendErr != nil {
				log.Printf("[Bulk] send to %s (%s) failed: %v", client.Name, client.Phone, sendErr)
				item.Error = sendErr.Error()
			} else {
				item.Success = true
			}
		}

		if item.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, item)

		// pace sends; no pause after the last one
		if i < len(recipients)-1 {
			s.sleep(s.pace)
		}
	}

	log.Printf("[Bulk] campaign done: %d sent, %d failed of %d", result.Sent, result.Failed, result.Total)
	return result, nil
}

// RenderTemplate substitutes the recipient placeholders ({nome}, {email},
// {telefone}, {documento}, {endereco}, {numero}, {bairro}, {cidade},
// {estado}, {cep}) with the client's data.
func RenderTemplate(template string, client *domain.Client) string {
	replacer := strings.NewReplacer(
		"{nome}", client.Name,
		"{email}", client.Email,
		"{telefone}", client.Phone,
		"{documento}", client.Document,
		"{endereco}", formatAddress(client.Address),
		"{numero}", client.Address.Number,
		"{bairro}", client.Address.District,
		"{cidade}", client.Address.City,
		"{estado}", client.Address.State,
		"{cep}", client.Address.ZipCode,
	)
	return replacer.Replace(template)
}

func formatAddress(a domain.Address) string {
	var parts []string
	if a.Street != "" {
		street := a.Street
		if a.Number != "" {
			street += ", " + a.Number
		}
		parts = append(parts, street)
	}
	if a.District != "" {
		parts = append(parts, a.District)
	}
	if a.City != "" {
		city := a.City
		if a.State != "" {
			city += "/" + a.State
		}
		parts = append(parts, city)
	}
	return strings.Join(parts, " - ")
}
