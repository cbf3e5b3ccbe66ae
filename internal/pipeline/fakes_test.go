package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/domain/registration"
	"github.com/geocoder89/tickethub/internal/imagekit"
	"github.com/geocoder89/tickethub/internal/notifications"
	"github.com/geocoder89/tickethub/internal/qrlink"
	"github.com/geocoder89/tickethub/internal/render"
)

// eventLog records side effects in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(event string) int {
	for i, e := range l.all() {
		if e == event {
			return i
		}
	}
	return -1
}

type write struct {
	Row   int
	Field registration.Field
	Value string
}

type fakeSource struct {
	log     *eventLog
	rows    []registration.Record
	writes  []write
	fetches int

	FetchFn func(ctx context.Context, n int) error
	WriteFn func(w write) error
}

func (s *fakeSource) Fetch(ctx context.Context) ([]registration.Record, error) {
	s.fetches++
	if s.FetchFn != nil {
		if err := s.FetchFn(ctx, s.fetches); err != nil {
			return nil, err
		}
	}
	return append([]registration.Record(nil), s.rows...), nil
}

func (s *fakeSource) Write(_ context.Context, row int, field registration.Field, value string) error {
	w := write{Row: row, Field: field, Value: value}
	if s.WriteFn != nil {
		if err := s.WriteFn(w); err != nil {
			return err
		}
	}
	s.log.add("write:%d:%s:%s", row, field, value)
	s.writes = append(s.writes, w)

	rec := &s.rows[row]
	switch field {
	case registration.FieldTicketStatus:
		rec.TicketStatus, _ = registration.ParseStatus(value)
	case registration.FieldEmailStatus:
		rec.EmailStatus, _ = registration.ParseStatus(value)
	case registration.FieldAttendeeID:
		rec.AttendeeID = value
	}
	return nil
}

// rowSource also supports re-reading a single row.
type rowSource struct {
	*fakeSource
	FetchRowFn func(row int) (registration.Record, error)
}

func (s *rowSource) FetchRow(_ context.Context, row int) (registration.Record, error) {
	s.log.add("recheck:%d", row)
	if s.FetchRowFn != nil {
		return s.FetchRowFn(row)
	}
	return s.rows[row], nil
}

type upload struct {
	Folder   string
	Filename string
	Size     int
}

type fakeUploader struct {
	log     *eventLog
	uploads []upload
	UploadFn func(folder, filename string) error
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, folder, filename string) (string, error) {
	u.log.add("upload:%s/%s", folder, filename)
	if u.UploadFn != nil {
		if err := u.UploadFn(folder, filename); err != nil {
			return "", err
		}
	}
	u.uploads = append(u.uploads, upload{Folder: folder, Filename: filename, Size: len(data)})
	return folder + "/" + filename, nil
}

type fakeMailer struct {
	log    *eventLog
	sent   []notifications.Mail
	calls  int
	SendFn func(m notifications.Mail) error
}

func (m *fakeMailer) Send(_ context.Context, mail notifications.Mail) error {
	m.calls++
	m.log.add("send:%s", mail.To)
	if m.SendFn != nil {
		if err := m.SendFn(mail); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, mail)
	return nil
}

type recordingLinks struct {
	log   *eventLog
	inner LinkBuilder
}

func (r *recordingLinks) BuildLink(name, attendeeID string) (string, error) {
	r.log.add("link:%s", name)
	return r.inner.BuildLink(name, attendeeID)
}

func (r *recordingLinks) NeedsAttendeeID() bool { return r.inner.NeedsAttendeeID() }

type recordingQR struct {
	log   *eventLog
	inner QREncoder
}

func (r *recordingQR) Encode(content string, size int) (image.Image, error) {
	r.log.add("qr")
	return r.inner.Encode(content, size)
}

type recordingRenderer struct {
	log   *eventLog
	inner *render.Renderer
}

func (r *recordingRenderer) Render(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, error) {
	r.log.add("render:%s", name)
	return r.inner.Render(tmpl, l, name, qr)
}

func (r *recordingRenderer) RenderFit(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, layout.Layout, error) {
	r.log.add("render:%s", name)
	return r.inner.RenderFit(tmpl, l, name, qr)
}

type fakeRegistry struct {
	log      *eventLog
	ids      map[string]string
	updates  []string
	EnsureFn func(name, email string) error
}

func (r *fakeRegistry) Ensure(_ context.Context, name, email string) (attendee.Attendee, error) {
	r.log.add("registry:%s", name)
	if r.EnsureFn != nil {
		if err := r.EnsureFn(name, email); err != nil {
			return attendee.Attendee{}, err
		}
	}
	key := attendee.NormalizeEmail(email) + "|" + name
	id, ok := r.ids[key]
	if !ok {
		id = fmt.Sprintf("att-%d", len(r.ids)+1)
		r.ids[key] = id
	}
	return attendee.Attendee{ID: id, Name: name, Email: email}, nil
}

func (r *fakeRegistry) UpdateStatus(_ context.Context, id string, ticket, email registration.Status) error {
	r.updates = append(r.updates, fmt.Sprintf("%s:%s:%s", id, ticket, email))
	return nil
}

// stepClock advances instantly whenever something waits on it.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errRelayDown = errors.New("smtp relay down")

var testLayout = layout.Layout{
	Name:   layout.NameAnchor{X: 40, Y: 40, FontSize: 30},
	QR:     layout.QRRegion{X: 200, Y: 150, Side: 150},
	Source: layout.SourceDetected,
}

func blankTemplate() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 600, 400))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

type harness struct {
	log      *eventLog
	source   *fakeSource
	uploader *fakeUploader
	mailer   *fakeMailer
	registry *fakeRegistry
	clock    *stepClock
	cfg      Config
	deps     Deps
}

func newHarness(t *testing.T, rows ...registration.Record) *harness {
	t.Helper()

	for i := range rows {
		rows[i].Row = i
	}

	font, err := imagekit.LoadFont("")
	if err != nil {
		t.Fatalf("load font: %v", err)
	}
	links, err := qrlink.NewBuilder("https://forms.example.com/attend?name={name}&status={status}", "Present", "")
	if err != nil {
		t.Fatalf("link builder: %v", err)
	}

	h := &harness{log: &eventLog{}, clock: newStepClock()}
	h.source = &fakeSource{log: h.log, rows: rows}
	h.uploader = &fakeUploader{log: h.log}
	h.mailer = &fakeMailer{log: h.log}
	h.registry = &fakeRegistry{log: h.log, ids: map[string]string{}}

	h.cfg = Config{
		PollInterval:     30 * time.Second,
		FetchRetries:     3,
		EmailMaxAttempts: 3,
		TicketsFolder:    "tickets",
		Overflow:         OverflowShrink,
		Backoff:          func(int) time.Duration { return 0 },
	}
	h.deps = Deps{
		Source:   h.source,
		Storage:  h.uploader,
		Mailer:   h.mailer,
		Links:    &recordingLinks{log: h.log, inner: links},
		QR:       &recordingQR{log: h.log, inner: imagekit.NewQREncoder()},
		Renderer: &recordingRenderer{log: h.log, inner: render.New(font, render.Options{Margin: 20})},
		Layouts:  NewLayoutHolder(testLayout),
		Template: blankTemplate(),
		Email:    notifications.Template{Subject: "Your ticket, {name}", Body: "Hello {name}, see attached."},
		Clock:    h.clock,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h
}

func (h *harness) pipeline() *Pipeline {
	return New(h.cfg, h.deps)
}

func unclaimed(name, email string) registration.Record {
	return registration.Record{Name: name, Email: email}
}

func writesFor(writes []write, row int, field registration.Field) []string {
	var out []string
	for _, w := range writes {
		if w.Row == row && w.Field == field {
			out = append(out, w.Value)
		}
	}
	return out
}
