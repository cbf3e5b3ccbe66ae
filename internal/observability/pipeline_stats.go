package observability

import (
	"sync/atomic"
	"time"
)

// Row outcomes, used as the result label on tickethub_pipeline_rows_total.
const (
	ResultClaimed       = "claimed"
	ResultGenerated     = "generated"
	ResultSent          = "sent"
	ResultFailed        = "failed"
	ResultSkipped       = "skipped"
	ResultEmailDeferred = "email_deferred"
)

// PipelineStats counts row outcomes in process. When built with a Prom the same
// increments are mirrored to Prometheus.
type PipelineStats struct {
	prom *Prom

	claimed       atomic.Uint64
	generated     atomic.Uint64
	sent          atomic.Uint64
	failed        atomic.Uint64
	skipped       atomic.Uint64
	emailDeferred atomic.Uint64
	scans         atomic.Uint64
	scanErrors    atomic.Uint64

	lastScanDuration atomic.Int64
	lastScanAt       atomic.Int64
	maxRowDuration   atomic.Int64
}

func NewPipelineStats(p *Prom) *PipelineStats {
	return &PipelineStats{prom: p}
}

func (m *PipelineStats) IncClaimed()       { m.inc(&m.claimed, ResultClaimed) }
func (m *PipelineStats) IncGenerated()     { m.inc(&m.generated, ResultGenerated) }
func (m *PipelineStats) IncSent()          { m.inc(&m.sent, ResultSent) }
func (m *PipelineStats) IncFailed()        { m.inc(&m.failed, ResultFailed) }
func (m *PipelineStats) IncSkipped()       { m.inc(&m.skipped, ResultSkipped) }
func (m *PipelineStats) IncEmailDeferred() { m.inc(&m.emailDeferred, ResultEmailDeferred) }

func (m *PipelineStats) inc(c *atomic.Uint64, result string) {
	c.Add(1)
	if m.prom != nil {
		m.prom.PipelineRows.WithLabelValues(result).Inc()
	}
}

// ObserveScan records a completed (or aborted, when err is non-nil) scan.
func (m *PipelineStats) ObserveScan(at time.Time, d time.Duration, err error) {
	m.scans.Add(1)
	m.lastScanDuration.Store(d.Nanoseconds())
	m.lastScanAt.Store(at.UnixNano())

	status := "ok"
	if err != nil {
		m.scanErrors.Add(1)
		status = "error"
	}
	if m.prom != nil {
		m.prom.PipelineScans.WithLabelValues(status).Inc()
		m.prom.PipelineScanDuration.Observe(d.Seconds())
	}
}

func (m *PipelineStats) ObserveRow(d time.Duration) {
	ns := d.Nanoseconds()
	if m.prom != nil {
		m.prom.PipelineRowDuration.Observe(d.Seconds())
	}

	for {
		curr := m.maxRowDuration.Load()

		if ns <= curr {
			return
		}

		if m.maxRowDuration.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type PipelineSnapshot struct {
	Claimed          uint64        `json:"claimed"`
	Generated        uint64        `json:"generated"`
	Sent             uint64        `json:"sent"`
	Failed           uint64        `json:"failed"`
	Skipped          uint64        `json:"skipped"`
	EmailDeferred    uint64        `json:"emailDeferred"`
	Scans            uint64        `json:"scans"`
	ScanErrors       uint64        `json:"scanErrors"`
	LastScanDuration time.Duration `json:"lastScanDurationNs"`
	LastScanAt       *time.Time    `json:"lastScanAt,omitempty"`
	MaxRowDuration   time.Duration `json:"maxRowDurationNs"`
}

func (m *PipelineStats) Snapshot() PipelineSnapshot {
	s := PipelineSnapshot{
		Claimed:          m.claimed.Load(),
		Generated:        m.generated.Load(),
		Sent:             m.sent.Load(),
		Failed:           m.failed.Load(),
		Skipped:          m.skipped.Load(),
		EmailDeferred:    m.emailDeferred.Load(),
		Scans:            m.scans.Load(),
		ScanErrors:       m.scanErrors.Load(),
		LastScanDuration: time.Duration(m.lastScanDuration.Load()),
		MaxRowDuration:   time.Duration(m.maxRowDuration.Load()),
	}
	if ns := m.lastScanAt.Load(); ns != 0 {
		at := time.Unix(0, ns).UTC()
		s.LastScanAt = &at
	}
	return s
}
