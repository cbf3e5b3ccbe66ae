package imagekit

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#000000", color.NRGBA{0, 0, 0, 255}},
		{"#fff", color.NRGBA{255, 255, 255, 255}},
		{"#10203080", color.NRGBA{0x10, 0x20, 0x30, 0x80}},
	}

	for _, tc := range tests {
		got, err := ParseHexColor(tc.in)
		if err != nil {
			t.Fatalf("ParseHexColor(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseHexColor("#12345"); err == nil {
		t.Fatalf("expected error for malformed color")
	}
}

func TestQREncoder_Size(t *testing.T) {
	img, err := NewQREncoder().Encode("https://example.com/a?name=Asha+Rao", 120)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 120 {
		t.Fatalf("expected 120x120, got %v", b)
	}
}

func TestEncodePNG_Deterministic(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.NRGBA{255, 0, 0, 255})

	a, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}
	b, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("png encoding is not deterministic")
	}

	back, err := Decode(a)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if back.Bounds().Dx() != 16 {
		t.Fatalf("unexpected decoded bounds %v", back.Bounds())
	}
}

func TestDrawString_PaintsPixels(t *testing.T) {
	f, err := LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont error: %v", err)
	}
	face, err := f.Face(24)
	if err != nil {
		t.Fatalf("Face error: %v", err)
	}
	defer face.Close()

	dst := image.NewNRGBA(image.Rect(0, 0, 200, 40))
	DrawString(dst, face, 4, 4, "Asha", color.NRGBA{0, 0, 0, 255})

	painted := false
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] != 0 {
			painted = true
			break
		}
	}
	if !painted {
		t.Fatalf("expected text pixels to be drawn")
	}
	if w := MeasureString(face, "Asha"); w <= 0 {
		t.Fatalf("expected positive width, got %d", w)
	}
}
