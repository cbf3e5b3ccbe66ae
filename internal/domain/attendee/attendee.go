package attendee

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("attendee not found")

// Attendee is the durable identity behind a registration row, keyed by email and name.
type Attendee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	TicketStatus string    `json:"ticketStatus"`
	EmailStatus  string    `json:"emailStatus"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// New builds an attendee with a fresh id. Email is stored lower-cased.
func New(name, email string) Attendee {
	now := time.Now().UTC()
	return Attendee{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     NormalizeEmail(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
