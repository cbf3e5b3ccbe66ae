// Package imagekit holds the raster primitives the detector and renderer build on:
// decoding, encoding, resize/paste, text drawing and QR pixel generation.
package imagekit

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Load decodes an image file (png, jpeg, gif, bmp, tiff).
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return img, nil
}

func Decode(b []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(b))
}

// EncodePNG produces deterministic PNG bytes for img.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Clone copies img into a fresh NRGBA canvas anchored at (0,0).
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// ResizeSquare scales img to exactly side x side. Nearest-neighbour keeps QR modules crisp.
func ResizeSquare(img image.Image, side int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == side && b.Dy() == side {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, side, side, imaging.NearestNeighbor)
}

// Paste returns a copy of dst with src drawn at pt. Neither input is modified.
func Paste(dst, src image.Image, pt image.Point) *image.NRGBA {
	return imaging.Paste(dst, src, pt)
}

// ParseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	v := strings.TrimPrefix(strings.TrimSpace(s), "#")

	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) == 6 {
		v += "ff"
	}
	if len(v) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}

	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}

	return color.NRGBA{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}
