package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geocoder89/tickethub/internal/domain/layout"
)

// LayoutState is the writable part of the configuration: the detected coordinates
// and whether startup may skip detection.
type LayoutState struct {
	SkipDetection bool             `yaml:"skip_detection"`
	Layout        *PersistedLayout `yaml:"layout,omitempty"`
	DetectedAt    time.Time        `yaml:"detected_at,omitempty"`
}

type PersistedLayout struct {
	NameX    int `yaml:"name_x"`
	NameY    int `yaml:"name_y"`
	FontSize int `yaml:"font_size"`
	QRX      int `yaml:"qr_x"`
	QRY      int `yaml:"qr_y"`
	QRSide   int `yaml:"qr_side"`
}

func Persist(l layout.Layout) *PersistedLayout {
	return &PersistedLayout{
		NameX:    l.Name.X,
		NameY:    l.Name.Y,
		FontSize: l.Name.FontSize,
		QRX:      l.QR.X,
		QRY:      l.QR.Y,
		QRSide:   l.QR.Side,
	}
}

// Layout converts the persisted coordinates back. They were detected once, so the
// source is Detected.
func (p *PersistedLayout) Layout() layout.Layout {
	return layout.Layout{
		Name:   layout.NameAnchor{X: p.NameX, Y: p.NameY, FontSize: p.FontSize},
		QR:     layout.QRRegion{X: p.QRX, Y: p.QRY, Side: p.QRSide},
		Source: layout.SourceDetected,
	}
}

// LayoutStore reads and writes LayoutState as a YAML file.
type LayoutStore struct {
	path string
}

func NewLayoutStore(path string) *LayoutStore {
	return &LayoutStore{path: path}
}

func (s *LayoutStore) Path() string { return s.path }

// Load returns the zero state when the file does not exist yet.
func (s *LayoutStore) Load() (LayoutState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LayoutState{}, nil
		}
		return LayoutState{}, fmt.Errorf("failed to read layout state: %w", err)
	}

	var st LayoutState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return LayoutState{}, &ConfigError{Field: s.path, Reason: "malformed layout state: " + err.Error()}
	}
	return st, nil
}

// Save records a successful detection and flips skip_detection on. The file is
// replaced atomically.
func (s *LayoutStore) Save(l layout.Layout, at time.Time) error {
	st := LayoutState{
		SkipDetection: true,
		Layout:        Persist(l),
		DetectedAt:    at.UTC(),
	}

	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to marshal layout state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create layout state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".layout-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write layout state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write layout state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write layout state: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace layout state: %w", err)
	}
	return nil
}
