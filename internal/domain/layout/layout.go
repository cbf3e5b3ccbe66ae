package layout

import (
	"errors"
	"fmt"
	"image"
)

// Source records where a Layout came from.
type Source int

const (
	SourceDetected Source = iota
	SourceFallbackDefault
	SourceFallbackCached
)

func (s Source) String() string {
	switch s {
	case SourceDetected:
		return "detected"
	case SourceFallbackDefault:
		return "fallback_default"
	case SourceFallbackCached:
		return "fallback_cached"
	default:
		return "unknown"
	}
}

var (
	ErrDegenerate  = errors.New("layout has a non-positive size")
	ErrOutOfBounds = errors.New("layout region lies outside the template")
)

// NameAnchor is the top-left point the attendee name is drawn from.
type NameAnchor struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	FontSize int `json:"fontSize"`
}

// QRRegion is a square region anchored at its top-left corner.
type QRRegion struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Side int `json:"side"`
}

func (q QRRegion) Rect() image.Rectangle {
	return image.Rect(q.X, q.Y, q.X+q.Side, q.Y+q.Side)
}

type Layout struct {
	Name   NameAnchor `json:"name"`
	QR     QRRegion   `json:"qr"`
	Source Source     `json:"-"`
}

// NameRect is the band one line of name text occupies, from the anchor to the right edge.
func (l Layout) NameRect(bounds image.Rectangle) image.Rectangle {
	return image.Rect(l.Name.X, l.Name.Y, bounds.Max.X, l.Name.Y+l.Name.FontSize)
}

// Validate checks the layout fits inside bounds. Coordinates are relative to the
// template's top-left corner.
func (l Layout) Validate(bounds image.Rectangle) error {
	if l.Name.FontSize <= 0 || l.QR.Side <= 0 {
		return fmt.Errorf("%w: font=%d qr=%d", ErrDegenerate, l.Name.FontSize, l.QR.Side)
	}

	b := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	name := image.Rect(l.Name.X, l.Name.Y, l.Name.X+1, l.Name.Y+l.Name.FontSize)
	if !name.In(b) {
		return fmt.Errorf("%w: name anchor (%d,%d) size %d in %dx%d", ErrOutOfBounds, l.Name.X, l.Name.Y, l.Name.FontSize, b.Dx(), b.Dy())
	}

	if !l.QR.Rect().In(b) {
		return fmt.Errorf("%w: qr %v in %dx%d", ErrOutOfBounds, l.QR.Rect(), b.Dx(), b.Dy())
	}

	return nil
}

// WithFontSize returns a copy with the name font size replaced.
func (l Layout) WithFontSize(size int) Layout {
	l.Name.FontSize = size
	return l
}

// Defaults are the hand-tuned coordinates used when detection is unavailable.
type Defaults struct {
	NameX    int
	NameY    int
	FontSize int
	QRY      int
	QRSize   int
}

// Default builds a FallbackDefault layout clamped into bounds. The QR square is
// centered horizontally, the name is left-anchored at NameX (or a tenth of the width
// when NameX is zero).
func Default(bounds image.Rectangle, d Defaults) Layout {
	w, h := bounds.Dx(), bounds.Dy()

	side := minInt(d.QRSize, w/2, h/2)
	if side <= 0 {
		side = 1
	}
	qrX := (w - side) / 2
	qrY := clamp(d.QRY, 0, h-side)

	font := minInt(d.FontSize, h/8)
	if font <= 0 {
		font = 1
	}

	nameX := d.NameX
	if nameX <= 0 {
		nameX = w / 10
	}
	nameX = clamp(nameX, 0, w-1)
	nameY := clamp(d.NameY, 0, h-font)

	// keep the name band above the QR square when the clamped values collide
	if nameY+font > qrY && nameY < qrY+side {
		nameY = clamp(qrY-font, 0, h-font)
	}

	return Layout{
		Name:   NameAnchor{X: nameX, Y: nameY, FontSize: font},
		QR:     QRRegion{X: qrX, Y: qrY, Side: side},
		Source: SourceFallbackDefault,
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
