package imagekit

import (
	"fmt"
	"image"

	qrcode "github.com/skip2/go-qrcode"
)

// QREncoder turns a link into QR pixels.
type QREncoder struct {
	Level qrcode.RecoveryLevel
}

func NewQREncoder() *QREncoder {
	return &QREncoder{Level: qrcode.Low}
}

// Encode renders content as a size x size QR image with a quiet-zone border.
func (e *QREncoder) Encode(content string, size int) (image.Image, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	if size <= 0 {
		return nil, fmt.Errorf("qr: invalid size %d", size)
	}

	q, err := qrcode.New(content, e.Level)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}

	return ResizeSquare(q.Image(size), size), nil
}
