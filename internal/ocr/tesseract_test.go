package ocr

import (
	"image"
	"strings"
	"testing"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1080\t1920\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t420\t750\t180\t58\t91.5\t{name}\n" +
	"5\t1\t2\t1\t1\t1\t380\t950\t320\t70\t88.0\t{QR}\n" +
	"5\t1\t3\t1\t1\t1\t10\t10\t50\t20\t40.0\t \n"

func TestParseTSV(t *testing.T) {
	boxes, err := ParseTSV(strings.NewReader(sampleTSV))
	if err != nil {
		t.Fatalf("ParseTSV error: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 word boxes, got %d", len(boxes))
	}

	if boxes[0].Text != "{name}" || boxes[0].Box != image.Rect(420, 750, 600, 808) {
		t.Fatalf("unexpected first box %+v", boxes[0])
	}
	if boxes[1].Confidence != 88.0 {
		t.Fatalf("unexpected confidence %v", boxes[1].Confidence)
	}
}

func TestParseTSV_MissingColumn(t *testing.T) {
	_, err := ParseTSV(strings.NewReader("level\tleft\ttop\n5\t1\t2\n"))
	if err == nil {
		t.Fatalf("expected error for missing columns")
	}
}

func TestSortReadingOrder(t *testing.T) {
	boxes := []TextBox{
		{Text: "c", Box: image.Rect(50, 100, 60, 110)},
		{Text: "b", Box: image.Rect(90, 10, 95, 20)},
		{Text: "a", Box: image.Rect(10, 10, 20, 20)},
	}
	SortReadingOrder(boxes)

	got := boxes[0].Text + boxes[1].Text + boxes[2].Text
	if got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
}
