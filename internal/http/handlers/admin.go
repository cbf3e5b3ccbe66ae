package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tickethub/internal/detect"
	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/observability"
)

type LayoutController interface {
	Current() layout.Layout
	Redetect(ctx context.Context) (layout.Layout, error)
}

type StatsReader interface {
	Stats() observability.PipelineSnapshot
}

type Previewer interface {
	Preview(name, attendeeID string) ([]byte, error)
}

type AttendeeReader interface {
	GetByID(ctx context.Context, id string) (attendee.Attendee, error)
}

type AdminHandler struct {
	layouts   LayoutController
	stats     StatsReader
	preview   Previewer
	attendees AttendeeReader
}

func NewAdminHandler(layouts LayoutController, stats StatsReader, preview Previewer, attendees AttendeeReader) *AdminHandler {
	return &AdminHandler{layouts: layouts, stats: stats, preview: preview, attendees: attendees}
}

type layoutResponse struct {
	Name   layout.NameAnchor `json:"name"`
	QR     layout.QRRegion   `json:"qr"`
	Source string            `json:"source"`
}

func toLayoutResponse(l layout.Layout) layoutResponse {
	return layoutResponse{Name: l.Name, QR: l.QR, Source: l.Source.String()}
}

func (h *AdminHandler) GetLayout(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, toLayoutResponse(h.layouts.Current()))
}

// Redetect re-runs marker detection. A fallback is reported as 422 with the layout
// now in use; a marker conflict leaves the current layout and answers 409.
func (h *AdminHandler) Redetect(ctx *gin.Context) {
	l, err := h.layouts.Redetect(ctx.Request.Context())

	var failure *detect.DetectionFailure
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, toLayoutResponse(l))
	case errors.Is(err, detect.ErrLayoutConflict):
		RespondConflict(ctx, "layout_conflict", err.Error(), gin.H{"layout": toLayoutResponse(l)})
	case errors.As(err, &failure):
		RespondUnprocessable(ctx, "detection_failed", failure.Error(), gin.H{"layout": toLayoutResponse(l)})
	default:
		RespondInternal(ctx, "Could not run layout detection", err)
	}
}

func (h *AdminHandler) GetStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.stats.Stats())
}

type previewRequest struct {
	Name       string `json:"name" binding:"required,max=200"`
	AttendeeID string `json:"attendeeId" binding:"omitempty,max=64"`
}

// Preview answers with a rendered ticket PNG; nothing is stored.
func (h *AdminHandler) Preview(ctx *gin.Context) {
	var req previewRequest
	if !BindJSON(ctx, &req) {
		return
	}

	png, err := h.preview.Preview(req.Name, req.AttendeeID)
	if err != nil {
		RespondUnprocessable(ctx, "render_failed", err.Error(), nil)
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (h *AdminHandler) GetAttendee(ctx *gin.Context) {
	a, err := h.attendees.GetByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, attendee.ErrNotFound) {
			RespondNotFound(ctx, "Attendee not found")
			return
		}
		RespondInternal(ctx, "Could not fetch attendee", err)
		return
	}
	ctx.JSON(http.StatusOK, a)
}
