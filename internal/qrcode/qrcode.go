package qrcode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const imageSize = 256

// DataURL encodes content as a QR code PNG and returns it as a data URI
// suitable for an <img src>.
func DataURL(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty content")
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR: %w", err)
	}

	scaled, err := barcode.Scale(code, imageSize, imageSize)
	if err != nil {
		return "", fmt.Errorf("failed to scale QR: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("failed to render QR PNG: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
