package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	minSize     = 128
	maxSize     = 1024
	defaultSize = 512
)

// EncodePNG renders the given content as a QR code PNG. Size is clamped to a
// sane range so a hostile query parameter cannot request an enormous image.
func EncodePNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content required")
	}
	if size <= 0 {
		size = defaultSize
	}
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}
