// Package detect infers ticket geometry from a template image carrying the literal
// markers {name} and {QR}.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/ocr"
)

const (
	MarkerName = "{name}"
	MarkerQR   = "{QR}"
)

var (
	ErrMarkerNotFound   = errors.New("marker not found")
	ErrMarkerDegenerate = errors.New("marker box has no area")
	ErrLayoutConflict   = errors.New("name and qr markers overlap")
)

// DetectionFailure is recoverable: Detect returns it together with a usable fallback layout.
type DetectionFailure struct {
	Markers []string
	Err     error
}

func (e *DetectionFailure) Error() string {
	return fmt.Sprintf("detection failed for %s: %v", strings.Join(e.Markers, ", "), e.Err)
}

func (e *DetectionFailure) Unwrap() error { return e.Err }

// ConflictError reports overlapping marker regions. No layout accompanies it.
type ConflictError struct {
	Name image.Rectangle
	QR   image.Rectangle
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: name %v, qr %v", ErrLayoutConflict, e.Name, e.QR)
}

func (e *ConflictError) Unwrap() error { return ErrLayoutConflict }

type Options struct {
	// FontScale multiplies the {name} box height to get the font size.
	FontScale float64
	// QRScale multiplies the larger side of the {QR} box.
	QRScale  float64
	Defaults layout.Defaults
}

type Detector struct {
	ocr  ocr.Extractor
	opts Options
	log  *slog.Logger
}

func New(extractor ocr.Extractor, opts Options, log *slog.Logger) *Detector {
	if opts.FontScale <= 0 {
		opts.FontScale = 1
	}
	if opts.QRScale <= 0 {
		opts.QRScale = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{ocr: extractor, opts: opts, log: log}
}

// Detect locates the markers in tagged and derives a Layout.
//
// On a missing or degenerate marker it returns a fallback layout (the cached one when
// it fits the template, the configured defaults otherwise) and a *DetectionFailure.
// Overlapping markers return a *ConflictError and a zero Layout.
func (d *Detector) Detect(ctx context.Context, tagged image.Image, cached *layout.Layout) (layout.Layout, error) {
	bounds := tagged.Bounds()

	boxes, err := d.ocr.ExtractTextBoxes(ctx, tagged)
	if err != nil {
		return d.fallback(bounds, cached, &DetectionFailure{
			Markers: []string{MarkerName, MarkerQR},
			Err:     err,
		})
	}
	ocr.SortReadingOrder(boxes)

	nameBox, nameErr := findMarker(boxes, MarkerName, bounds.Min)
	qrBox, qrErr := findMarker(boxes, MarkerQR, bounds.Min)

	failure := &DetectionFailure{}
	if nameErr != nil {
		failure.Markers = append(failure.Markers, MarkerName)
		failure.Err = errors.Join(failure.Err, fmt.Errorf("%s: %w", MarkerName, nameErr))
	}
	if qrErr != nil {
		failure.Markers = append(failure.Markers, MarkerQR)
		failure.Err = errors.Join(failure.Err, fmt.Errorf("%s: %w", MarkerQR, qrErr))
	}
	if len(failure.Markers) > 0 {
		return d.fallback(bounds, cached, failure)
	}

	font := scale(nameBox.Dy(), d.opts.FontScale)
	side := scale(max(qrBox.Dx(), qrBox.Dy()), d.opts.QRScale)

	l := layout.Layout{
		Name:   layout.NameAnchor{X: nameBox.Min.X, Y: nameBox.Min.Y, FontSize: font},
		QR:     layout.QRRegion{X: qrBox.Min.X, Y: qrBox.Min.Y, Side: side},
		Source: layout.SourceDetected,
	}

	nameRect := image.Rect(nameBox.Min.X, nameBox.Min.Y, nameBox.Max.X, nameBox.Min.Y+font)
	if nameRect.Overlaps(l.QR.Rect()) {
		return layout.Layout{}, &ConflictError{Name: nameRect, QR: l.QR.Rect()}
	}

	if err := l.Validate(bounds); err != nil {
		return d.fallback(bounds, cached, &DetectionFailure{Markers: outOfBounds(l, bounds), Err: err})
	}

	d.log.InfoContext(ctx, "layout detected",
		"name_x", l.Name.X, "name_y", l.Name.Y, "font_size", l.Name.FontSize,
		"qr_x", l.QR.X, "qr_y", l.QR.Y, "qr_side", l.QR.Side,
	)
	return l, nil
}

func (d *Detector) fallback(bounds image.Rectangle, cached *layout.Layout, failure *DetectionFailure) (layout.Layout, error) {
	if cached != nil && cached.Validate(bounds) == nil {
		l := *cached
		l.Source = layout.SourceFallbackCached
		d.log.Warn("layout detection failed, using cached layout", "markers", failure.Markers, "err", failure.Err)
		return l, failure
	}

	l := layout.Default(bounds, d.opts.Defaults)
	d.log.Warn("layout detection failed, using default layout", "markers", failure.Markers, "err", failure.Err)
	return l, failure
}

// findMarker returns the first box in reading order whose text matches marker,
// translated so the template's top-left corner is the origin.
// Degenerate matches are skipped in favour of a later usable one.
func findMarker(boxes []ocr.TextBox, marker string, origin image.Point) (image.Rectangle, error) {
	err := ErrMarkerNotFound
	for _, b := range boxes {
		if !strings.EqualFold(strings.TrimSpace(b.Text), marker) {
			continue
		}
		r := b.Box.Sub(origin)
		if r.Dx() <= 0 || r.Dy() <= 0 {
			err = ErrMarkerDegenerate
			continue
		}
		return r, nil
	}
	return image.Rectangle{}, err
}

// outOfBounds names the markers whose derived regions leave the template.
func outOfBounds(l layout.Layout, bounds image.Rectangle) []string {
	b := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	var markers []string
	if !image.Rect(l.Name.X, l.Name.Y, l.Name.X+1, l.Name.Y+l.Name.FontSize).In(b) {
		markers = append(markers, MarkerName)
	}
	if !l.QR.Rect().In(b) {
		markers = append(markers, MarkerQR)
	}
	if len(markers) == 0 {
		markers = []string{MarkerName, MarkerQR}
	}
	return markers
}

func scale(v int, f float64) int {
	return int(math.Round(float64(v) * f))
}
