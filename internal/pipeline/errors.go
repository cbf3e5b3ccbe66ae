package pipeline

import (
	"errors"
	"fmt"
)

// Delivery stages.
const (
	StageUploadQR     = "upload_qr"
	StageUploadTicket = "upload_ticket"
	StageEmail        = "email"
)

var (
	ErrFetchFailed         = errors.New("registration source unreachable")
	ErrAttendeeUnavailable = errors.New("attendee id unavailable")
)

// DeliveryError is an upload or mail failure for a single row. It never aborts a scan.
type DeliveryError struct {
	Stage string
	Row   int
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
