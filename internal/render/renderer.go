// Package render composes personalized tickets from a blank template.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/imagekit"
)

var (
	ErrEmptyName     = errors.New("attendee name is empty")
	ErrMissingQR     = errors.New("qr image is missing")
	ErrInvalidLayout = errors.New("layout does not fit the template")
)

// RenderError reports name text that would run past the right margin.
type RenderError struct {
	Name     string
	FontSize int
	Width    int
	Limit    int
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("name %q at %dpx is %dpx wide, only %dpx available", e.Name, e.FontSize, e.Width, e.Limit)
}

// FitSize is the largest font size that keeps the name inside the limit, assuming
// width scales linearly with size.
func (e *RenderError) FitSize() int {
	if e.Width <= 0 || e.Limit <= 0 {
		return 1
	}
	s := e.FontSize * e.Limit / e.Width
	if s < 1 {
		return 1
	}
	return s
}

type Options struct {
	// Margin is the number of pixels kept clear at the template's right edge.
	Margin    int
	TextColor color.Color
}

type Renderer struct {
	font *imagekit.Font
	opts Options
}

func New(font *imagekit.Font, opts Options) *Renderer {
	if opts.TextColor == nil {
		opts.TextColor = color.NRGBA{A: 255}
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}
	return &Renderer{font: font, opts: opts}
}

// Render pastes qr into the layout's QR square and draws name at the name anchor on a
// copy of tmpl. tmpl must be the blank template, never the tagged one. Inputs are not
// modified and identical inputs produce identical pixels.
func (r *Renderer) Render(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, error) {
	return r.render(tmpl, l, name, qr, false)
}

// RenderFit applies the overflow policy: on a *RenderError the font shrinks once to
// the computed fit size and rendering is retried. If the shrunk name still overflows
// it is drawn anyway and the part past the template edge is clipped by the image
// bounds; the text is never re-flowed or ellipsized. The returned layout is the one
// actually used.
func (r *Renderer) RenderFit(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, layout.Layout, error) {
	img, err := r.render(tmpl, l, name, qr, false)

	var overflow *RenderError
	if !errors.As(err, &overflow) {
		return img, l, err
	}

	shrunk := l.WithFontSize(overflow.FitSize())
	img, err = r.render(tmpl, shrunk, name, qr, false)
	if errors.As(err, &overflow) {
		img, err = r.render(tmpl, shrunk, name, qr, true)
	}
	return img, shrunk, err
}

func (r *Renderer) render(tmpl image.Image, l layout.Layout, name string, qr image.Image, acceptOverflow bool) (*image.NRGBA, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if qr == nil {
		return nil, ErrMissingQR
	}

	bounds := tmpl.Bounds()
	if err := l.Validate(bounds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	face, err := r.font.Face(l.Name.FontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	width := imagekit.MeasureString(face, name)
	limit := bounds.Dx() - r.opts.Margin - l.Name.X
	if width > limit && !acceptOverflow {
		return nil, &RenderError{Name: name, FontSize: l.Name.FontSize, Width: width, Limit: limit}
	}

	canvas := imagekit.Clone(tmpl)
	canvas = imagekit.Paste(canvas, imagekit.ResizeSquare(qr, l.QR.Side), image.Pt(l.QR.X, l.QR.Y))
	imagekit.DrawString(canvas, face, l.Name.X, l.Name.Y, name, r.opts.TextColor)

	return canvas, nil
}
