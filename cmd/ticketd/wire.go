package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/geocoder89/tickethub/internal/config"
	"github.com/geocoder89/tickethub/internal/detect"
	"github.com/geocoder89/tickethub/internal/imagekit"
	"github.com/geocoder89/tickethub/internal/ocr"
	"github.com/geocoder89/tickethub/internal/pipeline"
	"github.com/geocoder89/tickethub/internal/qrlink"
	"github.com/geocoder89/tickethub/internal/render"
)

// templates holds both template images. The tagged one is only ever fed to OCR.
type templates struct {
	tagged image.Image
	blank  image.Image
}

func loadTemplates(cfg config.Config) (templates, error) {
	tagged, err := imagekit.Load(cfg.TaggedTemplatePath)
	if err != nil {
		return templates{}, fmt.Errorf("load tagged template: %w", err)
	}
	blank, err := imagekit.Load(cfg.BlankTemplatePath)
	if err != nil {
		return templates{}, fmt.Errorf("load blank template: %w", err)
	}
	if tagged.Bounds().Size() != blank.Bounds().Size() {
		return templates{}, &config.ConfigError{
			Field:  "TICKET_TEMPLATE_EMPTY_PATH",
			Reason: fmt.Sprintf("size %v differs from tagged template %v", blank.Bounds().Size(), tagged.Bounds().Size()),
		}
	}
	return templates{tagged: tagged, blank: blank}, nil
}

func newLayoutManager(cfg config.Config, t templates, log *slog.Logger) *pipeline.LayoutManager {
	tess := ocr.NewTesseract(cfg.TesseractCmd)
	if !cfg.SkipDetection {
		if err := tess.Check(); err != nil {
			log.Warn("ocr engine unavailable, detection will fall back", "cmd", cfg.TesseractCmd, "err", err)
		}
	}

	detector := detect.New(tess, detect.Options{
		FontScale: cfg.DetectFontScale,
		QRScale:   cfg.DetectQRScale,
		Defaults:  cfg.LayoutDefaults,
	}, log)

	return pipeline.NewLayoutManager(
		pipeline.LayoutManagerConfig{SkipDetection: cfg.SkipDetection, Defaults: cfg.LayoutDefaults},
		detector,
		config.NewLayoutStore(cfg.LayoutStatePath),
		t.tagged,
		t.blank.Bounds(),
		pipeline.RealClock(),
		log,
	)
}

// resolveLayout tolerates detection fallbacks and conflicts; both leave a usable
// layout in the holder.
func resolveLayout(ctx context.Context, m *pipeline.LayoutManager, log *slog.Logger) error {
	l, err := m.Resolve(ctx)

	var failure *detect.DetectionFailure
	switch {
	case err == nil:
	case errors.As(err, &failure):
		log.WarnContext(ctx, "layout detection fell back", "markers", failure.Markers, "err", failure.Err)
	case errors.Is(err, detect.ErrLayoutConflict):
		log.ErrorContext(ctx, "layout markers conflict, using fallback layout", "err", err)
	default:
		return fmt.Errorf("resolve layout: %w", err)
	}

	log.InfoContext(ctx, "layout in use",
		"source", l.Source.String(),
		"name_x", l.Name.X, "name_y", l.Name.Y, "font_size", l.Name.FontSize,
		"qr_x", l.QR.X, "qr_y", l.QR.Y, "qr_side", l.QR.Side,
	)
	return nil
}

// renderDeps builds everything a ticket needs besides the layout.
type renderDeps struct {
	links    *qrlink.Builder
	renderer *render.Renderer
}

func newRenderDeps(cfg config.Config) (renderDeps, error) {
	font, err := imagekit.LoadFont(cfg.FontPath)
	if err != nil {
		return renderDeps{}, fmt.Errorf("load font: %w", err)
	}
	textColor, err := imagekit.ParseHexColor(cfg.TextColor)
	if err != nil {
		return renderDeps{}, &config.ConfigError{Field: "TEXT_COLOR", Reason: err.Error()}
	}
	links, err := qrlink.NewBuilder(cfg.AttendanceURLTemplate, cfg.AttendanceStatus, cfg.LinkSigningSecret)
	if err != nil {
		return renderDeps{}, &config.ConfigError{Field: "ATTENDANCE_URL_TEMPLATE", Reason: err.Error()}
	}

	return renderDeps{
		links:    links,
		renderer: render.New(font, render.Options{Margin: cfg.NameMargin, TextColor: textColor}),
	}, nil
}
