// Package pipeline drives registration rows through ticket generation, upload and
// delivery, writing every transition back to the registration source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/domain/registration"
	"github.com/geocoder89/tickethub/internal/guard"
	"github.com/geocoder89/tickethub/internal/imagekit"
	"github.com/geocoder89/tickethub/internal/notifications"
	"github.com/geocoder89/tickethub/internal/observability"
	"github.com/geocoder89/tickethub/internal/render"
)

type OverflowPolicy string

const (
	OverflowShrink OverflowPolicy = "shrink"
	OverflowFail   OverflowPolicy = "fail"
)

type Config struct {
	PollInterval     time.Duration
	FetchRetries     int
	EmailMaxAttempts int
	TicketsFolder    string
	// QRFolder receives the bare QR image too; empty skips that upload.
	QRFolder         string
	Overflow         OverflowPolicy
	// WriteAttendeeID copies registry ids into the source's attendee id column.
	WriteAttendeeID  bool
	// Backoff defaults to ExponentialBackoff.
	Backoff          func(attempt int) time.Duration
}

type Deps struct {
	Source   Source
	Storage  Uploader
	Mailer   Mailer
	Links    LinkBuilder
	QR       QREncoder
	Renderer Renderer
	Layouts  *LayoutHolder
	// Template is the blank production template, never the tagged one.
	Template image.Image
	Email    notifications.Template
	Registry Registry
	Guard    guard.Guard
	Stats    *observability.PipelineStats
	Clock    Clock
	Log      *slog.Logger
}

// ScanResult summarizes one pass over the source.
type ScanResult struct {
	Rows          int
	Claimed       int
	Generated     int
	Sent          int
	Failed        int
	Skipped       int
	EmailDeferred int
}

type emailRetry struct {
	attempts int
	next     time.Time
}

// Pipeline is a single logical worker. ScanOnce and Run must not be called
// concurrently.
type Pipeline struct {
	cfg  Config
	deps Deps

	validate *validator.Validate
	tracer   trace.Tracer

	// scan numbers log records; ScanOnce is never concurrent
	scan uint64

	mu      sync.Mutex
	retries map[string]*emailRetry
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.EmailMaxAttempts <= 0 {
		cfg.EmailMaxAttempts = 1
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowShrink
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}
	if deps.Guard == nil {
		deps.Guard = guard.NewMemory()
	}
	if deps.Stats == nil {
		deps.Stats = observability.NewPipelineStats(nil)
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		tracer:   otel.Tracer("github.com/geocoder89/tickethub/internal/pipeline"),
		retries:  make(map[string]*emailRetry),
	}
}

func (p *Pipeline) Stats() observability.PipelineSnapshot {
	return p.deps.Stats.Snapshot()
}

// Run scans, sleeps for the poll interval and scans again until ctx is cancelled.
// Only a fetch that keeps failing (or a missing column) stops it with an error.
func (p *Pipeline) Run(ctx context.Context) error {
	p.deps.Log.InfoContext(ctx, "pipeline started", "poll_interval", p.cfg.PollInterval.String())

	for {
		res, err := p.ScanOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.deps.Log.InfoContext(ctx, "pipeline stopped")
				return nil
			}
			return err
		}

		p.deps.Log.InfoContext(ctx, "scan complete",
			"rows", res.Rows, "claimed", res.Claimed, "generated", res.Generated,
			"sent", res.Sent, "failed", res.Failed, "email_deferred", res.EmailDeferred,
		)

		select {
		case <-ctx.Done():
			p.deps.Log.InfoContext(ctx, "pipeline stopped")
			return nil
		case <-p.deps.Clock.After(p.cfg.PollInterval):
		}
	}
}

// ScanOnce reads the source and processes every admissible row in source order.
// Row failures are recorded in the source and never abort the scan.
func (p *Pipeline) ScanOnce(ctx context.Context) (res ScanResult, err error) {
	p.scan++
	ctx = observability.WithLogAttrs(ctx, "scan", p.scan)
	ctx, span := p.tracer.Start(ctx, "pipeline.scan")
	start := p.deps.Clock.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.deps.Stats.ObserveScan(start, p.deps.Clock.Now().Sub(start), err)
	}()

	records, err := p.fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Rows = len(records)
	span.SetAttributes(attribute.Int("rows", len(records)))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch {
		case rec.Unclaimed():
			p.processRow(ctx, rec, &res)
		case rec.NeedsEmail():
			p.retryEmail(ctx, rec, &res)
		}
	}

	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context) ([]registration.Record, error) {
	for attempt := 0; ; attempt++ {
		records, err := p.deps.Source.Fetch(ctx)
		if err == nil {
			return records, nil
		}
		if errors.Is(err, registration.ErrMissingColumn) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= p.cfg.FetchRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchFailed, attempt+1, err)
		}

		delay := p.cfg.Backoff(attempt)
		p.deps.Log.WarnContext(ctx, "fetch failed, retrying", "attempt", attempt+1, "delay", delay.String(), "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.deps.Clock.After(delay):
		}
	}
}

func (p *Pipeline) rowLog(rec registration.Record) *slog.Logger {
	return p.deps.Log.With("row", rec.Row, "name", rec.Name, "email", rec.Email)
}

// admissible reports whether a record carries a usable identity. Rows with a blank
// name or email are left alone; a malformed address fails the ticket.
func (p *Pipeline) admissible(ctx context.Context, rec registration.Record, res *ScanResult) bool {
	log := p.rowLog(rec)

	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Email) == "" {
		log.WarnContext(ctx, "row skipped, missing name or email")
		res.Skipped++
		p.deps.Stats.IncSkipped()
		return false
	}

	if err := p.validate.Var(strings.TrimSpace(rec.Email), "email"); err != nil {
		log.WarnContext(ctx, "row failed, malformed email address")
		p.write(ctx, rec, registration.FieldTicketStatus, registration.StatusFailed.String())
		res.Failed++
		p.deps.Stats.IncFailed()
		return false
	}
	return true
}

func (p *Pipeline) processRow(ctx context.Context, rec registration.Record, res *ScanResult) {
	if !p.admissible(ctx, rec, res) {
		return
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.row", trace.WithAttributes(attribute.Int("row", rec.Row)))
	defer span.End()
	start := p.deps.Clock.Now()
	defer func() { p.deps.Stats.ObserveRow(p.deps.Clock.Now().Sub(start)) }()

	log := p.rowLog(rec)

	// claim before any work so a crash leaves the row visibly in progress
	if err := p.deps.Source.Write(ctx, rec.Row, registration.FieldTicketStatus, registration.StatusGenerating.String()); err != nil {
		log.ErrorContext(ctx, "claim failed", "err", err)
		span.RecordError(err)
		res.Failed++
		p.deps.Stats.IncFailed()
		return
	}
	rec.TicketStatus = registration.StatusGenerating
	res.Claimed++
	p.deps.Stats.IncClaimed()
	log.InfoContext(ctx, "row claimed", "ticket_status", rec.TicketStatus.String())

	id, err := p.ensureAttendee(ctx, rec)
	if err != nil {
		p.failTicket(ctx, rec, res, err)
		return
	}
	rec.AttendeeID = id

	art, err := p.build(rec)
	if err != nil {
		p.failTicket(ctx, rec, res, err)
		return
	}

	if p.cfg.QRFolder != "" {
		if _, err := p.deps.Storage.Upload(ctx, art.qrPNG, p.cfg.QRFolder, artifactName(rec.Name, "QR")); err != nil {
			p.failTicket(ctx, rec, res, &DeliveryError{Stage: StageUploadQR, Row: rec.Row, Err: err})
			return
		}
	}
	if _, err := p.deps.Storage.Upload(ctx, art.ticketPNG, p.cfg.TicketsFolder, art.ticketName); err != nil {
		p.failTicket(ctx, rec, res, &DeliveryError{Stage: StageUploadTicket, Row: rec.Row, Err: err})
		return
	}

	if err := p.deps.Source.Write(ctx, rec.Row, registration.FieldTicketStatus, registration.StatusGenerated.String()); err != nil {
		// the row stays Generating... for manual follow-up
		log.ErrorContext(ctx, "failed to record generated ticket", "err", err)
		span.RecordError(err)
		res.Failed++
		p.deps.Stats.IncFailed()
		return
	}
	rec.TicketStatus = registration.StatusGenerated
	res.Generated++
	p.deps.Stats.IncGenerated()
	p.mirror(ctx, rec)
	log.InfoContext(ctx, "ticket generated", "ticket_status", rec.TicketStatus.String())

	p.deliver(ctx, rec, art, res)
}

// retryEmail handles a row whose ticket exists but whose email never went out. The
// ticket is rebuilt in memory only; nothing is uploaded and the ticket status is
// not touched.
func (p *Pipeline) retryEmail(ctx context.Context, rec registration.Record, res *ScanResult) {
	if r, ok := p.retryState(rec.Key()); ok && p.deps.Clock.Now().Before(r.next) {
		return
	}
	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Email) == "" {
		res.Skipped++
		p.deps.Stats.IncSkipped()
		return
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.email_retry", trace.WithAttributes(attribute.Int("row", rec.Row)))
	defer span.End()

	if rec.AttendeeID == "" {
		id, err := p.ensureAttendee(ctx, rec)
		if err != nil {
			// the ticket stands; try again on a later scan
			p.rowLog(rec).WarnContext(ctx, "email retry deferred", "err", err)
			res.EmailDeferred++
			p.deps.Stats.IncEmailDeferred()
			return
		}
		rec.AttendeeID = id
	}

	art, err := p.build(rec)
	if err != nil {
		p.rowLog(rec).ErrorContext(ctx, "email retry could not rebuild ticket", "err", err)
		p.write(ctx, rec, registration.FieldEmailStatus, registration.StatusFailed.String())
		res.Failed++
		p.deps.Stats.IncFailed()
		return
	}

	p.deliver(ctx, rec, art, res)
}

type artifacts struct {
	qrPNG      []byte
	ticketPNG  []byte
	ticketName string
}

func (p *Pipeline) build(rec registration.Record) (artifacts, error) {
	l := p.deps.Layouts.Load()

	link, err := p.deps.Links.BuildLink(rec.Name, rec.AttendeeID)
	if err != nil {
		return artifacts{}, fmt.Errorf("build link: %w", err)
	}

	qr, err := p.deps.QR.Encode(link, l.QR.Side)
	if err != nil {
		return artifacts{}, fmt.Errorf("encode qr: %w", err)
	}

	ticket, err := p.render(l, rec.Name, qr)
	if err != nil {
		return artifacts{}, err
	}

	qrPNG, err := imagekit.EncodePNG(qr)
	if err != nil {
		return artifacts{}, fmt.Errorf("encode qr png: %w", err)
	}
	ticketPNG, err := imagekit.EncodePNG(ticket)
	if err != nil {
		return artifacts{}, fmt.Errorf("encode ticket png: %w", err)
	}

	return artifacts{
		qrPNG:      qrPNG,
		ticketPNG:  ticketPNG,
		ticketName: artifactName(rec.Name, "Ticket"),
	}, nil
}

// Preview renders the ticket PNG for name with the current layout. Nothing is
// uploaded or written back.
func (p *Pipeline) Preview(name, attendeeID string) ([]byte, error) {
	art, err := p.build(registration.Record{Name: name, AttendeeID: attendeeID})
	if err != nil {
		return nil, err
	}
	return art.ticketPNG, nil
}

func (p *Pipeline) render(l layout.Layout, name string, qr image.Image) (*image.NRGBA, error) {
	if p.cfg.Overflow == OverflowFail {
		return p.deps.Renderer.Render(p.deps.Template, l, name, qr)
	}

	img, used, err := p.deps.Renderer.RenderFit(p.deps.Template, l, name, qr)
	if err != nil {
		return nil, err
	}
	if used.Name.FontSize != l.Name.FontSize {
		p.deps.Log.Info("name shrunk to fit", "name", name, "font_size", used.Name.FontSize, "layout_font_size", l.Name.FontSize)
	}
	return img, nil
}

// deliver sends the ticket email at most once per attendee. A failed send leaves the
// email status empty until the attempt budget is spent.
func (p *Pipeline) deliver(ctx context.Context, rec registration.Record, art artifacts, res *ScanResult) {
	log := p.rowLog(rec)
	key := rec.Key()

	// another instance may have handled the row since the scan read it
	if rf, ok := p.deps.Source.(RowFetcher); ok {
		cur, err := rf.FetchRow(ctx, rec.Row)
		if err != nil {
			log.WarnContext(ctx, "re-check before send failed, deferring email", "err", err)
			res.EmailDeferred++
			p.deps.Stats.IncEmailDeferred()
			return
		}
		if cur.Key() != key || cur.EmailStatus != registration.StatusEmpty {
			log.InfoContext(ctx, "row changed since scan, not sending", "email_status", cur.EmailStatus.String())
			return
		}
	}

	switch err := p.deps.Guard.Begin(ctx, key); {
	case errors.Is(err, guard.ErrAlreadySent):
		// sent by an earlier run that crashed before recording it
		log.InfoContext(ctx, "email already delivered, recording status")
		p.recordSent(ctx, rec, res)
		return
	case errors.Is(err, guard.ErrInProgress):
		log.InfoContext(ctx, "email in progress elsewhere, deferring")
		res.EmailDeferred++
		p.deps.Stats.IncEmailDeferred()
		return
	case err != nil:
		log.WarnContext(ctx, "delivery guard unavailable, deferring email", "err", err)
		res.EmailDeferred++
		p.deps.Stats.IncEmailDeferred()
		return
	}

	mail := p.deps.Email.Compose(strings.TrimSpace(rec.Email), rec.Name, art.ticketPNG, art.ticketName)
	if err := p.deps.Mailer.Send(ctx, mail); err != nil {
		if rerr := p.deps.Guard.Release(ctx, key); rerr != nil {
			log.WarnContext(ctx, "failed to release delivery claim", "err", rerr)
		}
		p.emailFailed(ctx, rec, res, &DeliveryError{Stage: StageEmail, Row: rec.Row, Err: err})
		return
	}

	if err := p.deps.Guard.MarkSent(ctx, key); err != nil {
		log.WarnContext(ctx, "failed to mark delivery sent", "err", err)
	}
	p.recordSent(ctx, rec, res)
}

func (p *Pipeline) recordSent(ctx context.Context, rec registration.Record, res *ScanResult) {
	log := p.rowLog(rec)
	p.clearRetry(rec.Key())

	if err := p.deps.Source.Write(ctx, rec.Row, registration.FieldEmailStatus, registration.StatusSent.String()); err != nil {
		log.ErrorContext(ctx, "email sent but status write failed", "err", err)
	}
	rec.EmailStatus = registration.StatusSent
	res.Sent++
	p.deps.Stats.IncSent()
	p.mirror(ctx, rec)
	log.InfoContext(ctx, "ticket emailed", "email_status", rec.EmailStatus.String())
}

func (p *Pipeline) emailFailed(ctx context.Context, rec registration.Record, res *ScanResult, err error) {
	log := p.rowLog(rec)
	key := rec.Key()

	p.mu.Lock()
	r := p.retries[key]
	if r == nil {
		r = &emailRetry{}
		p.retries[key] = r
	}
	r.attempts++
	attempts := r.attempts
	r.next = p.deps.Clock.Now().Add(p.cfg.Backoff(attempts - 1))
	p.mu.Unlock()

	if attempts < p.cfg.EmailMaxAttempts {
		log.WarnContext(ctx, "email failed, will retry", "attempt", attempts, "err", err)
		res.EmailDeferred++
		p.deps.Stats.IncEmailDeferred()
		return
	}

	log.ErrorContext(ctx, "email failed, giving up", "attempt", attempts, "err", err)
	p.clearRetry(key)
	p.write(ctx, rec, registration.FieldEmailStatus, registration.StatusFailed.String())
	rec.EmailStatus = registration.StatusFailed
	res.Failed++
	p.deps.Stats.IncFailed()
	p.mirror(ctx, rec)
}

func (p *Pipeline) failTicket(ctx context.Context, rec registration.Record, res *ScanResult, err error) {
	log := p.rowLog(rec)

	var rerr *render.RenderError
	if errors.As(err, &rerr) {
		log.ErrorContext(ctx, "name overflows template", "width", rerr.Width, "limit", rerr.Limit, "font_size", rerr.FontSize)
	} else {
		log.ErrorContext(ctx, "ticket failed", "err", err)
	}
	trace.SpanFromContext(ctx).RecordError(err)

	p.write(ctx, rec, registration.FieldTicketStatus, registration.StatusFailed.String())
	rec.TicketStatus = registration.StatusFailed
	res.Failed++
	p.deps.Stats.IncFailed()
	p.mirror(ctx, rec)
}

// write records a terminal status. A failed write is logged; the row keeps whatever
// the source last held.
func (p *Pipeline) write(ctx context.Context, rec registration.Record, field registration.Field, value string) {
	if err := p.deps.Source.Write(ctx, rec.Row, field, value); err != nil {
		p.rowLog(rec).ErrorContext(ctx, "status write failed", "field", field.String(), "value", value, "err", err)
	}
}

// ensureAttendee resolves the row's attendee id. Without an id the row cannot go on
// when the link embeds it or the id column is kept; otherwise the registry is only a
// mirror and its failure is logged.
func (p *Pipeline) ensureAttendee(ctx context.Context, rec registration.Record) (string, error) {
	if p.deps.Registry == nil {
		if rec.AttendeeID == "" && p.deps.Links.NeedsAttendeeID() {
			return "", fmt.Errorf("%w: no attendee registry", ErrAttendeeUnavailable)
		}
		return rec.AttendeeID, nil
	}

	required := p.cfg.WriteAttendeeID || p.deps.Links.NeedsAttendeeID()

	a, err := p.deps.Registry.Ensure(ctx, rec.Name, rec.Email)
	if err != nil {
		if required {
			return "", fmt.Errorf("%w: registry: %v", ErrAttendeeUnavailable, err)
		}
		p.rowLog(rec).WarnContext(ctx, "attendee registry unavailable", "err", err)
		return rec.AttendeeID, nil
	}

	if p.cfg.WriteAttendeeID && a.ID != rec.AttendeeID {
		if err := p.deps.Source.Write(ctx, rec.Row, registration.FieldAttendeeID, a.ID); err != nil {
			return "", fmt.Errorf("%w: write id: %v", ErrAttendeeUnavailable, err)
		}
	}
	return a.ID, nil
}

// mirror copies the row's statuses to the registry, best effort.
func (p *Pipeline) mirror(ctx context.Context, rec registration.Record) {
	if p.deps.Registry == nil || rec.AttendeeID == "" {
		return
	}
	if err := p.deps.Registry.UpdateStatus(ctx, rec.AttendeeID, rec.TicketStatus, rec.EmailStatus); err != nil {
		p.rowLog(rec).WarnContext(ctx, "attendee status mirror failed", "err", err)
	}
}

func (p *Pipeline) retryState(key string) (emailRetry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.retries[key]
	if !ok {
		return emailRetry{}, false
	}
	return *r, true
}

func (p *Pipeline) clearRetry(key string) {
	p.mu.Lock()
	delete(p.retries, key)
	p.mu.Unlock()
}

// artifactName turns "Asha Rao" into "Asha_Rao_<suffix>.png".
func artifactName(name, suffix string) string {
	base := strings.Join(strings.Fields(name), "_")
	base = strings.NewReplacer("/", "_", "\\", "_").Replace(base)
	return base + "_" + suffix + ".png"
}
