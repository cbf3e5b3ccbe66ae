package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/imagekit"
)

func newTestRenderer(t *testing.T, margin int) *Renderer {
	t.Helper()
	f, err := imagekit.LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont error: %v", err)
	}
	return New(f, Options{Margin: margin})
}

func blankTemplate(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{240, 240, 255, 255}), image.Point{}, draw.Src)
	return img
}

func checker(side int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.NRGBA{0, 0, 0, 255})
			} else {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

var testLayout = layout.Layout{
	Name: layout.NameAnchor{X: 20, Y: 20, FontSize: 24},
	QR:   layout.QRRegion{X: 100, Y: 80, Side: 64},
}

func TestRender_Deterministic(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(300, 200)
	qr := checker(32)

	a, err := r.Render(tmpl, testLayout, "Asha Rao", qr)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	b, err := r.Render(tmpl, testLayout, "Asha Rao", qr)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	pa, _ := imagekit.EncodePNG(a)
	pb, _ := imagekit.EncodePNG(b)
	if !bytes.Equal(pa, pb) {
		t.Fatalf("identical inputs produced different output")
	}
}

func TestRender_DoesNotMutateTemplate(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(300, 200)
	before := append([]uint8(nil), tmpl.Pix...)

	if _, err := r.Render(tmpl, testLayout, "Asha Rao", checker(32)); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !bytes.Equal(before, tmpl.Pix) {
		t.Fatalf("template pixels were modified")
	}
}

func TestRender_PastesQRAtExactSize(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(300, 200)

	out, err := r.Render(tmpl, testLayout, "Asha Rao", checker(32))
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	// checker(32) scaled 2x: the top-left 8x8 block is black, the next is white
	if got := out.NRGBAAt(100, 80); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Fatalf("expected black at qr origin, got %v", got)
	}
	if got := out.NRGBAAt(108, 80); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Fatalf("expected white at second qr block, got %v", got)
	}
	// just outside the square the template shows through
	if got := out.NRGBAAt(164, 80); got != (color.NRGBA{240, 240, 255, 255}) {
		t.Fatalf("expected template color right of qr, got %v", got)
	}
}

func TestRender_Overflow(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(120, 200)

	l := testLayout
	l.QR = layout.QRRegion{X: 20, Y: 80, Side: 64}

	_, err := r.Render(tmpl, l, "Bartholomew Maximilian Featherstonehaugh", checker(32))

	var overflow *RenderError
	if !errors.As(err, &overflow) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if overflow.Limit != 120-10-20 {
		t.Fatalf("unexpected limit %d", overflow.Limit)
	}
	if overflow.FitSize() >= l.Name.FontSize {
		t.Fatalf("fit size %d should shrink below %d", overflow.FitSize(), l.Name.FontSize)
	}
}

func TestRenderFit_ShrinksThenAccepts(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(120, 200)

	l := testLayout
	l.QR = layout.QRRegion{X: 20, Y: 80, Side: 64}

	out, used, err := r.RenderFit(tmpl, l, "Bartholomew Maximilian Featherstonehaugh", checker(32))
	if err != nil {
		t.Fatalf("RenderFit error: %v", err)
	}
	if out == nil {
		t.Fatalf("expected an image")
	}
	if used.Name.FontSize >= l.Name.FontSize {
		t.Fatalf("expected a smaller font, got %d", used.Name.FontSize)
	}
}

func TestRender_Validation(t *testing.T) {
	r := newTestRenderer(t, 10)
	tmpl := blankTemplate(300, 200)

	if _, err := r.Render(tmpl, testLayout, "   ", checker(32)); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := r.Render(tmpl, testLayout, "Asha", nil); !errors.Is(err, ErrMissingQR) {
		t.Fatalf("expected ErrMissingQR, got %v", err)
	}

	bad := testLayout
	bad.QR.X = 280
	if _, err := r.Render(tmpl, bad, "Asha", checker(32)); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}
