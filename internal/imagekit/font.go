package imagekit

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Font is a parsed TrueType/OpenType font. Faces are created per size and are not
// shared between goroutines.
type Font struct {
	otf *opentype.Font
}

// LoadFont parses the font at path, or the embedded Go Regular font when path is empty.
func LoadFont(path string) (*Font, error) {
	data := goregular.TTF

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", path, err)
		}
		data = b
	}

	otf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Font{otf: otf}, nil
}

// Face returns a face whose em size is px pixels.
func (f *Font) Face(px int) (font.Face, error) {
	if px <= 0 {
		return nil, fmt.Errorf("invalid font size %d", px)
	}
	return opentype.NewFace(f.otf, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// MeasureString returns the advance width of s in whole pixels.
func MeasureString(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// DrawString draws s with its top edge at (x, top). Pixels outside dst are clipped.
func DrawString(dst draw.Image, face font.Face, x, top int, s string, c color.Color) {
	ascent := face.Metrics().Ascent.Ceil()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, top+ascent),
	}
	d.DrawString(s)
}
