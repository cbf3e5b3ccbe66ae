package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the closed set of values a ticket or email status cell can hold.
type Status int

const (
	StatusEmpty Status = iota
	StatusGenerating
	StatusGenerated
	StatusSent
	StatusFailed
)

var (
	ErrUnknownStatus = errors.New("unknown status value")
	ErrMissingColumn = errors.New("required column missing from source")
	ErrRowNotFound   = errors.New("registration row not found")
)

// String is the value written back into the source cell.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return ""
	case StatusGenerating:
		return "Generating..."
	case StatusGenerated:
		return "Generated"
	case StatusSent:
		return "Sent"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus maps a cell value onto the closed set. Older sheets carry suffixed
// failures ("Failed (Email)") and both ASCII and unicode ellipses.
func ParseStatus(raw string) (Status, error) {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)

	switch {
	case v == "":
		return StatusEmpty, nil
	case strings.HasPrefix(lower, "generating"):
		return StatusGenerating, nil
	case lower == "generated":
		return StatusGenerated, nil
	case lower == "sent":
		return StatusSent, nil
	case strings.HasPrefix(lower, "failed"):
		return StatusFailed, nil
	default:
		return StatusEmpty, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Field names a writable column of a registration row.
type Field int

const (
	FieldTicketStatus Field = iota
	FieldEmailStatus
	FieldAttendeeID
)

func (f Field) String() string {
	switch f {
	case FieldTicketStatus:
		return "ticket_status"
	case FieldEmailStatus:
		return "email_status"
	case FieldAttendeeID:
		return "attendee_id"
	default:
		return "unknown"
	}
}

// Record is one row of the registration source. Row is the zero-based data row
// index (the header row is not counted).
type Record struct {
	Row          int
	Timestamp    string
	Name         string
	Email        string
	AttendeeID   string
	TicketStatus Status
	EmailStatus  Status
	CreatedAt    time.Time
}

// Unclaimed reports whether no pipeline run has touched the ticket yet.
func (r Record) Unclaimed() bool {
	return r.TicketStatus == StatusEmpty
}

// NeedsEmail reports a ticket that was generated but never delivered.
func (r Record) NeedsEmail() bool {
	return r.TicketStatus == StatusGenerated && r.EmailStatus == StatusEmpty
}

// Key identifies the attendee independent of row position.
func (r Record) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Email)) + "|" + strings.TrimSpace(r.Name)
}
