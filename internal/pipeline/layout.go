package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geocoder89/tickethub/internal/config"
	"github.com/geocoder89/tickethub/internal/detect"
	"github.com/geocoder89/tickethub/internal/domain/layout"
)

// LayoutHolder publishes the current layout to the scan loop. Rows read it once at
// the start of their traversal, so a swap only affects later rows.
type LayoutHolder struct {
	p atomic.Pointer[layout.Layout]
}

func NewLayoutHolder(l layout.Layout) *LayoutHolder {
	h := &LayoutHolder{}
	h.Store(l)
	return h
}

func (h *LayoutHolder) Load() layout.Layout {
	if l := h.p.Load(); l != nil {
		return *l
	}
	return layout.Layout{}
}

func (h *LayoutHolder) Store(l layout.Layout) {
	h.p.Store(&l)
}

type Detector interface {
	Detect(ctx context.Context, tagged image.Image, cached *layout.Layout) (layout.Layout, error)
}

type LayoutStore interface {
	Load() (config.LayoutState, error)
	Save(l layout.Layout, at time.Time) error
}

type LayoutManagerConfig struct {
	// SkipDetection forces the persisted (or default) layout even when the state
	// file has not flipped skip_detection yet.
	SkipDetection bool
	Defaults      layout.Defaults
}

// LayoutManager resolves the layout at startup, re-detects it on demand and persists
// every successful detection.
type LayoutManager struct {
	cfg      LayoutManagerConfig
	holder   *LayoutHolder
	detector Detector
	store    LayoutStore
	tagged   image.Image
	blank    image.Rectangle
	clock    Clock
	log      *slog.Logger

	mu sync.Mutex
}

func NewLayoutManager(
	cfg LayoutManagerConfig,
	detector Detector,
	store LayoutStore,
	tagged image.Image,
	blank image.Rectangle,
	clock Clock,
	log *slog.Logger,
) *LayoutManager {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &LayoutManager{
		cfg:      cfg,
		holder:   &LayoutHolder{},
		detector: detector,
		store:    store,
		tagged:   tagged,
		blank:    blank,
		clock:    clock,
		log:      log,
	}
}

func (m *LayoutManager) Holder() *LayoutHolder { return m.holder }

func (m *LayoutManager) Current() layout.Layout { return m.holder.Load() }

// Resolve picks the startup layout. A persisted layout is reused when detection is
// skipped; otherwise detection runs against the tagged template.
//
// The holder always ends up with a usable layout. A *detect.DetectionFailure or
// *detect.ConflictError is returned for logging only; any other error is fatal.
func (m *LayoutManager) Resolve(ctx context.Context) (layout.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.store.Load()
	if err != nil {
		return layout.Layout{}, err
	}

	var cached *layout.Layout
	if state.Layout != nil {
		l := state.Layout.Layout()
		if verr := l.Validate(m.blank); verr == nil {
			cached = &l
		} else {
			m.log.WarnContext(ctx, "persisted layout does not fit template, ignoring", "err", verr)
		}
	}

	if m.cfg.SkipDetection || state.SkipDetection {
		l := layout.Default(m.blank, m.cfg.Defaults)
		if cached != nil {
			l = *cached
		}
		m.holder.Store(l)
		m.log.InfoContext(ctx, "layout loaded, detection skipped", "source", l.Source.String())
		return l, nil
	}

	l, err := m.detect(ctx, cached)
	if errors.Is(err, detect.ErrLayoutConflict) {
		l = layout.Default(m.blank, m.cfg.Defaults)
		if cached != nil {
			l = *cached
			l.Source = layout.SourceFallbackCached
		}
	} else if err != nil && !isDetectionFailure(err) {
		return layout.Layout{}, err
	}

	m.holder.Store(l)
	return l, err
}

// Redetect runs detection again, seeded with the current layout as the cached one.
// On a conflict the current layout is kept and the error returned.
func (m *LayoutManager) Redetect(ctx context.Context) (layout.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.holder.Load()
	var cached *layout.Layout
	if current.Validate(m.blank) == nil {
		cached = &current
	}

	l, err := m.detect(ctx, cached)
	if err != nil && !isDetectionFailure(err) {
		return current, err
	}

	m.holder.Store(l)
	return l, err
}

func (m *LayoutManager) detect(ctx context.Context, cached *layout.Layout) (layout.Layout, error) {
	l, err := m.detector.Detect(ctx, m.tagged, cached)

	var conflict *detect.ConflictError
	switch {
	case errors.As(err, &conflict):
		m.log.WarnContext(ctx, "layout conflict, markers overlap", "name", conflict.Name.String(), "qr", conflict.QR.String())
		return layout.Layout{}, err
	case err != nil && !isDetectionFailure(err):
		return layout.Layout{}, err
	case err != nil:
		m.log.WarnContext(ctx, "layout detection failed, using fallback", "source", l.Source.String(), "err", err)
		return l, err
	}

	if verr := l.Validate(m.blank); verr != nil {
		fb := layout.Default(m.blank, m.cfg.Defaults)
		m.log.WarnContext(ctx, "detected layout does not fit blank template", "err", verr)
		return fb, &detect.DetectionFailure{Markers: []string{detect.MarkerName, detect.MarkerQR}, Err: verr}
	}

	if err := m.store.Save(l, m.clock.Now()); err != nil {
		// the layout is still usable for this process
		m.log.ErrorContext(ctx, "failed to persist detected layout", "err", err)
	}
	return l, nil
}

func isDetectionFailure(err error) bool {
	var df *detect.DetectionFailure
	return errors.As(err, &df)
}
