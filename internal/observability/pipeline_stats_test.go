package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPipelineStats_SnapshotAndMirror(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)
	s := NewPipelineStats(p)

	s.IncClaimed()
	s.IncClaimed()
	s.IncGenerated()
	s.IncSent()
	s.IncEmailDeferred()
	s.ObserveRow(40 * time.Millisecond)
	s.ObserveRow(10 * time.Millisecond)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ObserveScan(at, 2*time.Second, nil)
	s.ObserveScan(at.Add(time.Minute), time.Second, errors.New("sheet unreachable"))

	snap := s.Snapshot()
	if snap.Claimed != 2 || snap.Generated != 1 || snap.Sent != 1 || snap.EmailDeferred != 1 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if snap.Scans != 2 || snap.ScanErrors != 1 || snap.LastScanDuration != time.Second {
		t.Fatalf("unexpected scan stats %+v", snap)
	}
	if snap.MaxRowDuration != 40*time.Millisecond {
		t.Fatalf("unexpected max row duration %s", snap.MaxRowDuration)
	}
	if snap.LastScanAt == nil || !snap.LastScanAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("unexpected last scan time %v", snap.LastScanAt)
	}

	if got := counterValue(t, reg, "tickethub_pipeline_rows_total", "result", ResultClaimed); got != 2 {
		t.Fatalf("prometheus claimed = %v, want 2", got)
	}
	if got := counterValue(t, reg, "tickethub_pipeline_scans_total", "status", "error"); got != 1 {
		t.Fatalf("prometheus scan errors = %v, want 1", got)
	}
}

func TestPipelineStats_WithoutProm(t *testing.T) {
	s := NewPipelineStats(nil)
	s.IncFailed()
	s.IncSkipped()

	snap := s.Snapshot()
	if snap.Failed != 1 || snap.Skipped != 1 || snap.LastScanAt != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
