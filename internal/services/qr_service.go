package services

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// QRService renders PIX copy-paste codes as scannable QR images for
// processors that return the code without a hosted image.
type QRService struct {
	size int
}

func NewQRService() *QRService {
	return &QRService{size: 256}
}

// DataURL encodes the payload as a PNG QR code wrapped in a data URL,
// ready to embed in an <img> tag.
func (s *QRService) DataURL(payload string) (string, error) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.size)); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
