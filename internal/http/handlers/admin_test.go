package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tickethub/internal/detect"
	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/http/handlers"
	"github.com/geocoder89/tickethub/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var current = layout.Layout{
	Name:   layout.NameAnchor{X: 40, Y: 40, FontSize: 30},
	QR:     layout.QRRegion{X: 200, Y: 150, Side: 150},
	Source: layout.SourceDetected,
}

type fakeLayouts struct {
	redetectFn func(ctx context.Context) (layout.Layout, error)
}

func (f *fakeLayouts) Current() layout.Layout { return current }

func (f *fakeLayouts) Redetect(ctx context.Context) (layout.Layout, error) {
	if f.redetectFn != nil {
		return f.redetectFn(ctx)
	}
	return current, nil
}

type fakeStats struct{ snap observability.PipelineSnapshot }

func (f fakeStats) Stats() observability.PipelineSnapshot { return f.snap }

type fakePreview struct {
	previewFn func(name, attendeeID string) ([]byte, error)
}

func (f *fakePreview) Preview(name, attendeeID string) ([]byte, error) {
	if f.previewFn != nil {
		return f.previewFn(name, attendeeID)
	}
	return []byte("\x89PNG"), nil
}

type fakeAttendees struct {
	getFn func(ctx context.Context, id string) (attendee.Attendee, error)
}

func (f *fakeAttendees) GetByID(ctx context.Context, id string) (attendee.Attendee, error) {
	return f.getFn(ctx, id)
}

type errorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newAdminRouter(l *fakeLayouts, p *fakePreview, a *fakeAttendees) *gin.Engine {
	h := handlers.NewAdminHandler(l, fakeStats{snap: observability.PipelineSnapshot{Sent: 3}}, p, a)

	r := gin.New()
	r.GET("/admin/layout", h.GetLayout)
	r.POST("/admin/layout/detect", h.Redetect)
	r.GET("/admin/stats", h.GetStats)
	r.POST("/admin/tickets/preview", h.Preview)
	r.GET("/admin/attendees/:id", h.GetAttendee)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetLayout(t *testing.T) {
	r := newAdminRouter(&fakeLayouts{}, &fakePreview{}, &fakeAttendees{})

	w := serve(r, http.MethodGet, "/admin/layout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got struct {
		Name   layout.NameAnchor `json:"name"`
		QR     layout.QRRegion   `json:"qr"`
		Source string            `json:"source"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Source != "detected" || got.QR.Side != 150 || got.Name.FontSize != 30 {
		t.Fatalf("unexpected layout %+v", got)
	}
}

func TestRedetect_Outcomes(t *testing.T) {
	fallback := layout.Default(image.Rect(0, 0, 600, 400), layout.Defaults{NameY: 40, FontSize: 30, QRY: 150, QRSize: 150})

	tests := []struct {
		name     string
		fn       func(context.Context) (layout.Layout, error)
		wantCode int
		wantErr  string
	}{
		{
			name:     "detected",
			fn:       func(context.Context) (layout.Layout, error) { return current, nil },
			wantCode: http.StatusOK,
		},
		{
			name: "fallback",
			fn: func(context.Context) (layout.Layout, error) {
				return fallback, &detect.DetectionFailure{Markers: []string{"{QR}"}, Err: detect.ErrMarkerNotFound}
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "detection_failed",
		},
		{
			name: "conflict",
			fn: func(context.Context) (layout.Layout, error) {
				return current, &detect.ConflictError{Name: image.Rect(0, 0, 10, 10), QR: image.Rect(5, 5, 15, 15)}
			},
			wantCode: http.StatusConflict,
			wantErr:  "layout_conflict",
		},
		{
			name:     "unexpected",
			fn:       func(context.Context) (layout.Layout, error) { return current, errors.New("tesseract missing") },
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal_error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminRouter(&fakeLayouts{redetectFn: tc.fn}, &fakePreview{}, &fakeAttendees{})
			w := serve(r, http.MethodPost, "/admin/layout/detect", "")
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if tc.wantErr == "" {
				return
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.wantErr {
				t.Fatalf("expected code %s, got %s", tc.wantErr, body.Error.Code)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	r := newAdminRouter(&fakeLayouts{}, &fakePreview{}, &fakeAttendees{})

	w := serve(r, http.MethodGet, "/admin/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap observability.PipelineSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Sent != 3 {
		t.Fatalf("expected sent=3, got %+v", snap)
	}
}

func TestPreview(t *testing.T) {
	var gotName string
	p := &fakePreview{previewFn: func(name, _ string) ([]byte, error) {
		gotName = name
		return []byte("\x89PNG"), nil
	}}
	r := newAdminRouter(&fakeLayouts{}, p, &fakeAttendees{})

	w := serve(r, http.MethodPost, "/admin/tickets/preview", `{"name":"Asha Rao"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if gotName != "Asha Rao" {
		t.Fatalf("expected name forwarded, got %q", gotName)
	}
}

func TestPreview_ValidationUsesJSONFieldNames(t *testing.T) {
	r := newAdminRouter(&fakeLayouts{}, &fakePreview{}, &fakeAttendees{})

	w := serve(r, http.MethodPost, "/admin/tickets/preview", `{"attendeeId":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []handlers.FieldError `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Error.Details.Fields) != 1 || body.Error.Details.Fields[0].Field != "name" || body.Error.Details.Fields[0].Rule != "required" {
		t.Fatalf("unexpected field errors %+v", body.Error.Details.Fields)
	}
}

func TestPreview_BadJSON(t *testing.T) {
	r := newAdminRouter(&fakeLayouts{}, &fakePreview{}, &fakeAttendees{})

	w := serve(r, http.MethodPost, "/admin/tickets/preview", `{"name":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetAttendee(t *testing.T) {
	a := &fakeAttendees{getFn: func(_ context.Context, id string) (attendee.Attendee, error) {
		if id != "att-1" {
			return attendee.Attendee{}, attendee.ErrNotFound
		}
		return attendee.Attendee{ID: id, Name: "Asha Rao", TicketStatus: "Generated"}, nil
	}}
	r := newAdminRouter(&fakeLayouts{}, &fakePreview{}, a)

	if w := serve(r, http.MethodGet, "/admin/attendees/att-1", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/admin/attendees/att-2", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
