package safe2pay

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/qrcode"
)

// PixEMVPrefix is the magic prefix of a PIX BR Code payload. A value starting
// with it is the copy-paste code itself, never an image reference.
const PixEMVPrefix = "000201"

var imageExtPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|gif)$`)

// CanonicalPayment is the normalized, de-duplicated payment view derived from
// whatever shape the provider (or a legacy row) stored.
type CanonicalPayment struct {
	PixCopyPaste   string `json:"pix_copy_paste,omitempty"`
	PixQrCodeImage string `json:"pix_qr_code_image,omitempty"`
	BoletoURL      string `json:"boleto_url,omitempty"`
	BoletoCode     string `json:"boleto_code,omitempty"`
}

// Normalize extracts the canonical payment view from a raw provider response
// blob plus the invoice's stored url/code columns. Every field degrades to
// empty rather than failing; the function never errors.
//
// Provider responses come either flat or wrapped in ResponseDetail; legacy
// rows sometimes misfile an image URL in the code column or an EMV payload in
// the image column. The ordered fallback chains below resolve all of them.
func Normalize(rawDetails json.RawMessage, fallbackURL, fallbackCode, paymentMethod string) CanonicalPayment {
	root := rootObject(rawDetails)
	detail := detailObject(rawDetails)

	var out CanonicalPayment

	// Boleto
	out.BoletoURL = firstNonEmpty(
		getString(detail, "BankSlipUrl"),
		getString(detail, "PaymentUrl"),
		getString(detail, "Url"),
		fallbackURL,
	)
	out.BoletoCode = firstNonEmpty(getString(detail, "DigitableLine"), fallbackCode)

	// PIX copy-paste
	out.PixCopyPaste = firstNonEmpty(
		getString(detail, "Key"),
		getString(root, "PixKey"),
		getString(root, "Key"),
		getString(root, "key"),
		getString(root, "pix_key"),
		fallbackCode,
	)

	// PIX QR image
	out.PixQrCodeImage = firstNonEmpty(getString(detail, "QrCode"), getString(root, "QrCode"))
	if out.PixQrCodeImage == "" && paymentMethod == domain.PaymentMethodPix && looksLikeImageURL(fallbackURL) {
		out.PixQrCodeImage = fallbackURL
	}

	// An EMV payload stored as "image" is really the copy-paste code.
	if strings.HasPrefix(out.PixQrCodeImage, PixEMVPrefix) {
		if out.PixCopyPaste == "" {
			out.PixCopyPaste = out.PixQrCodeImage
		}
		out.PixQrCodeImage = ""
	}

	// Explicit base64 image outranks any URL guess.
	if b64 := getString(detail, "Base64"); b64 != "" {
		out.PixQrCodeImage = b64
	}

	// Legacy rows that saved the copy-paste code in the url column.
	if strings.HasPrefix(fallbackURL, PixEMVPrefix) && out.PixCopyPaste == "" {
		out.PixCopyPaste = fallbackURL
	}

	// Last resort: synthesize a scannable image from the copy-paste code.
	// Generation failure is non-fatal; the code alone is still usable.
	if out.PixCopyPaste != "" && out.PixQrCodeImage == "" {
		img, err := qrcode.DataURL(out.PixCopyPaste)
		if err != nil {
			log.Printf("[Normalize] QR generation failed: %v", err)
		} else {
			out.PixQrCodeImage = img
		}
	}

	return out
}

// rootObject parses raw as a JSON object, tolerating double-encoded strings.
// Unparseable input yields an empty object.
func rootObject(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	// Some rows store the blob as a JSON string of JSON.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return map[string]interface{}{}
}

// detailObject returns ResponseDetail when present, else the root itself.
func detailObject(raw json.RawMessage) map[string]interface{} {
	root := rootObject(raw)
	if nested, ok := root["ResponseDetail"].(map[string]interface{}); ok {
		return nested
	}
	return root
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// looksLikeImageURL reports whether a stored url plausibly points at a QR
// image: hosted by the gateway or ending in an image extension.
func looksLikeImageURL(url string) bool {
	if url == "" {
		return false
	}
	return strings.Contains(url, "safe2pay.com.br") || imageExtPattern.MatchString(url)
}
