// Package ocr extracts recognized words and their bounding boxes from images.
package ocr

import (
	"context"
	"image"
	"sort"
)

// TextBox is one recognized word and the rectangle it occupies.
type TextBox struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Extractor is the text-recognition capability the layout detector depends on.
type Extractor interface {
	ExtractTextBoxes(ctx context.Context, img image.Image) ([]TextBox, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, img image.Image) ([]TextBox, error)

func (f ExtractorFunc) ExtractTextBoxes(ctx context.Context, img image.Image) ([]TextBox, error) {
	return f(ctx, img)
}

// SortReadingOrder orders boxes top-to-bottom, then left-to-right. Ties keep their
// original order.
func SortReadingOrder(boxes []TextBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		a, b := boxes[i].Box.Min, boxes[j].Box.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}
