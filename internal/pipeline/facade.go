package pipeline

import (
	"context"
	"image"

	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/domain/registration"
	"github.com/geocoder89/tickethub/internal/notifications"
)

// Source is the tabular registration feed. Fetch returns rows in source order.
// A missing configured column is reported as registration.ErrMissingColumn.
type Source interface {
	Fetch(ctx context.Context) ([]registration.Record, error)
	Write(ctx context.Context, row int, field registration.Field, value string) error
}

// RowFetcher is implemented by sources that can re-read a single row. The pipeline
// uses it to re-check a row right before sending mail.
type RowFetcher interface {
	FetchRow(ctx context.Context, row int) (registration.Record, error)
}

// Uploader stores an artifact and returns a reference to it.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder, filename string) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, m notifications.Mail) error
}

type LinkBuilder interface {
	BuildLink(name, attendeeID string) (string, error)
	NeedsAttendeeID() bool
}

type QREncoder interface {
	Encode(content string, size int) (image.Image, error)
}

type Renderer interface {
	Render(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, error)
	RenderFit(tmpl image.Image, l layout.Layout, name string, qr image.Image) (*image.NRGBA, layout.Layout, error)
}

// Registry assigns stable attendee ids and mirrors their statuses.
type Registry interface {
	Ensure(ctx context.Context, name, email string) (attendee.Attendee, error)
	UpdateStatus(ctx context.Context, id string, ticket, email registration.Status) error
}
