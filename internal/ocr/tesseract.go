package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

var ErrEngineNotFound = errors.New("ocr engine binary not found")

// Tesseract runs the tesseract CLI and parses its TSV output.
type Tesseract struct {
	Cmd  string
	Lang string
	// PSM is the page segmentation mode; 11 (sparse text) suits scattered markers.
	PSM int
}

func NewTesseract(cmd string) *Tesseract {
	if cmd == "" {
		cmd = "tesseract"
	}
	return &Tesseract{Cmd: cmd, Lang: "eng", PSM: 11}
}

// Check verifies the engine binary can be resolved.
func (t *Tesseract) Check() error {
	if _, err := exec.LookPath(t.Cmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEngineNotFound, t.Cmd, err)
	}
	return nil
}

func (t *Tesseract) ExtractTextBoxes(ctx context.Context, img image.Image) ([]TextBox, error) {
	if err := t.Check(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "tickethub-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("ocr temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return nil, fmt.Errorf("ocr encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ocr temp file: %w", err)
	}

	args := []string{f.Name(), "stdout", "--psm", strconv.Itoa(t.PSM)}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	args = append(args, "tsv")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Cmd, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ParseTSV(&stdout)
}

// ParseTSV reads tesseract's TSV format and returns the word-level boxes that carry text.
func ParseTSV(r io.Reader) ([]TextBox, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		boxes  []TextBox
		header map[string]int
	)

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")

		if header == nil {
			header = make(map[string]int, len(cols))
			for i, c := range cols {
				header[strings.TrimSpace(c)] = i
			}
			for _, k := range []string{"level", "left", "top", "width", "height", "conf", "text"} {
				if _, ok := header[k]; !ok {
					return nil, fmt.Errorf("tsv: missing column %q", k)
				}
			}
			continue
		}

		get := func(k string) string {
			i := header[k]
			if i >= len(cols) {
				return ""
			}
			return cols[i]
		}

		text := strings.TrimSpace(get("text"))
		if text == "" || get("level") != "5" {
			continue
		}

		left, err1 := strconv.Atoi(get("left"))
		top, err2 := strconv.Atoi(get("top"))
		width, err3 := strconv.Atoi(get("width"))
		height, err4 := strconv.Atoi(get("height"))
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, fmt.Errorf("tsv: bad geometry in %q: %w", line, err)
		}
		conf, _ := strconv.ParseFloat(get("conf"), 64)

		boxes = append(boxes, TextBox{
			Text:       text,
			Box:        image.Rect(left, top, left+width, top+height),
			Confidence: conf,
		})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tsv: %w", err)
	}
	return boxes, nil
}
